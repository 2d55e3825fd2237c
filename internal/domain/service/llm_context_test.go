package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLLMCallFromContext(t *testing.T) {
	call := LLMCallFromContext(context.Background())
	assert.Equal(t, LLMCall{Workflow: "unknown", Provider: "unknown"}, call)

	ctx := WithLLMCall(context.Background(), LLMCall{Workflow: "reasoning", Provider: " openrouter ", Stage: "rule_extraction"})
	call = LLMCallFromContext(ctx)
	assert.Equal(t, "openrouter", call.Provider)
	assert.Equal(t, "reasoning.rule_extraction", call.Label())

	ctx = WithLLMCall(context.Background(), LLMCall{Workflow: "classify_intent"})
	call = LLMCallFromContext(ctx)
	assert.Equal(t, "classify_intent", call.Label())
	assert.Equal(t, "unknown", call.Provider)
}
