// Package service 定义跨层共享的领域上下文
package service

import (
	"context"
	"strings"
)

type llmCallKey struct{}

const unknown = "unknown"

// LLMCall 一次模型调用的归属信息，供回调打点与追踪使用
type LLMCall struct {
	// Workflow classify_intent、reasoning、embed_query 或 embed_passages
	Workflow string
	Provider string
	// Stage 推理阶段名，分类调用为空
	Stage string
}

// Label 指标标签，推理阶段形如 reasoning.rule_extraction
func (c LLMCall) Label() string {
	if c.Stage == "" {
		return c.Workflow
	}
	return c.Workflow + "." + c.Stage
}

// WithLLMCall 写入调用归属，空字段保持 unknown
func WithLLMCall(ctx context.Context, call LLMCall) context.Context {
	if ctx == nil {
		return nil
	}
	call.Workflow = strings.TrimSpace(call.Workflow)
	call.Provider = strings.TrimSpace(call.Provider)
	call.Stage = strings.TrimSpace(call.Stage)
	return context.WithValue(ctx, llmCallKey{}, call)
}

// LLMCallFromContext 读取调用归属
func LLMCallFromContext(ctx context.Context) LLMCall {
	call := LLMCall{Workflow: unknown, Provider: unknown}
	if ctx == nil {
		return call
	}
	if v, ok := ctx.Value(llmCallKey{}).(LLMCall); ok {
		if v.Workflow != "" {
			call.Workflow = v.Workflow
		}
		if v.Provider != "" {
			call.Provider = v.Provider
		}
		call.Stage = v.Stage
	}
	return call
}
