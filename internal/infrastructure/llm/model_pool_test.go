package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
)

func TestModelPoolResolve(t *testing.T) {
	pool := NewModelPool(&config.Config{LLM: config.LLMConfig{DefaultProvider: "openrouter"}})

	assert.Equal(t, "openrouter", pool.Resolve(""))
	assert.Equal(t, "local", pool.Resolve("local"))
}

func TestModelPoolUnknownProvider(t *testing.T) {
	pool := NewModelPool(&config.Config{LLM: config.LLMConfig{
		DefaultProvider: "missing",
		Providers:       map[string]config.ProviderConfig{},
	}})

	_, err := pool.ChatModel(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}
