// Package embedding 提供语义通道与入库共用的向量化客户端
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"legal-rag-api/internal/config"
	"legal-rag-api/pkg/retry"
)

// ErrNotConfigured 未配置 endpoint 或 model，调用方据此关闭语义通道
var ErrNotConfigured = errors.New("embedding is not configured")

// NewEmbedder 创建 OpenAI 兼容的 Embedder；配置了 dimension 时校验返回向量维度
func NewEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, ErrNotConfigured
	}

	ecfg := &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.Dimension > 0 {
		dim := cfg.Dimension
		ecfg.Dimensions = &dim
	}
	inner, err := openai.NewEmbedder(ctx, ecfg)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	if cfg.Dimension <= 0 {
		return inner, nil
	}
	return &dimensionChecked{inner: inner, dim: cfg.Dimension}, nil
}

// dimensionChecked 维度与 Milvus 集合不一致时直接失败，重试无意义
type dimensionChecked struct {
	inner embedding.Embedder
	dim   int
}

func (d *dimensionChecked) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	vecs, err := d.inner.EmbedStrings(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, retry.Permanent(fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts)))
	}
	for i, v := range vecs {
		if len(v) != d.dim {
			return nil, retry.Permanent(fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), d.dim))
		}
	}
	return vecs, nil
}
