package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/domain/entity"
)

func TestRegistry_AllStagePromptsRender(t *testing.T) {
	r := NewRegistry()
	vars := map[string]any{
		"question": "Is a verbal lease binding?",
		"context":  "(none)",
		"strategy": "hybrid",
		"evidence": "[1] (doc-1) text",
		"prior":    "(none)",
		"coverage": "I1: ok",
	}
	for _, stage := range entity.Stages {
		tpl, err := r.ChatTemplate(StagePromptID(stage))
		require.NoError(t, err, stage)
		msgs, err := tpl.Format(context.Background(), vars)
		require.NoError(t, err, stage)
		require.Len(t, msgs, 2)
		assert.Contains(t, msgs[1].Content, "Is a verbal lease binding?")
	}
}

func TestRegistry_ClassifyPromptKeepsLiteralBraces(t *testing.T) {
	tpl, err := NewRegistry().ChatTemplate(PromptClassifyIntentV1)
	require.NoError(t, err)
	msgs, err := tpl.Format(context.Background(), map[string]any{"question": "q", "context": ""})
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, `{"strategy": "<label>"}`)
}

func TestRegistry_UnknownPrompt(t *testing.T) {
	_, err := NewRegistry().ChatTemplate("nope")
	assert.Error(t, err)
}
