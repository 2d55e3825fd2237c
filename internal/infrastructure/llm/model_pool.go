// Package llm 管理分类与推理阶段使用的 ChatModel 客户端
package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/workflow/port"
)

// ModelPool 按 provider 惰性创建并复用 OpenAI 兼容的 ChatModel
type ModelPool struct {
	cfg    config.LLMConfig
	mu     sync.RWMutex
	models map[string]model.BaseChatModel
}

var _ port.ChatModelProvider = (*ModelPool)(nil)

// NewModelPool 创建 ChatModel 池
func NewModelPool(cfg *config.Config) *ModelPool {
	return &ModelPool{
		cfg:    cfg.LLM,
		models: make(map[string]model.BaseChatModel),
	}
}

// Resolve 返回实际使用的 provider 名称
func (p *ModelPool) Resolve(provider string) string {
	if provider == "" {
		return p.cfg.DefaultProvider
	}
	return provider
}

// ChatModel 获取 provider 对应的客户端，首次调用时创建
func (p *ModelPool) ChatModel(ctx context.Context, provider string) (model.BaseChatModel, error) {
	provider = p.Resolve(provider)

	p.mu.RLock()
	m, ok := p.models[provider]
	p.mu.RUnlock()
	if ok {
		return m, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok = p.models[provider]; ok {
		return m, nil
	}

	pc, ok := p.cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("llm provider %q is not configured", provider)
	}
	m, err := newChatModel(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create chat model for %s: %w", provider, err)
	}
	p.models[provider] = m
	return m, nil
}

func newChatModel(ctx context.Context, pc config.ProviderConfig) (model.BaseChatModel, error) {
	temperature := float32(pc.Temperature)
	mc := &openai.ChatModelConfig{
		APIKey:      pc.APIKey,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		Temperature: &temperature,
		Timeout:     pc.Timeout,
	}
	// 0 表示使用服务端默认上限
	if pc.MaxTokens > 0 {
		maxTokens := pc.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	return openai.NewChatModel(ctx, mc)
}
