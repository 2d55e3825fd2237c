package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
)

type stubChatModel struct {
	replies []string
	errs    []error
	calls   int
	seen    [][]*schema.Message
}

func (m *stubChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	m.seen = append(m.seen, in)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.replies) {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.AssistantMessage(m.replies[i], nil), nil
}

func (m *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

type stubModels struct {
	model model.BaseChatModel
}

func (f *stubModels) ChatModel(context.Context, string) (model.BaseChatModel, error) { return f.model, nil }

func (f *stubModels) Resolve(name string) string {
	if name == "" {
		return "stub"
	}
	return name
}

func TestClassifyChain_ParsesLabel(t *testing.T) {
	cm := &stubChatModel{replies: []string{"```json\n{\"strategy\": \"Keyword_Only\"}\n```"}}
	out, err := NewClassifyChain(&stubModels{model: cm}).Invoke(context.Background(), &wfmodel.ClassifyInput{
		Question: "What does section 12 say?",
	})
	require.NoError(t, err)
	assert.Equal(t, "keyword_only", out.Strategy)
	require.Len(t, cm.seen, 1)
	assert.Contains(t, cm.seen[0][1].Content, "What does section 12 say?")
}

func TestClassifyChain_ResponseFormatFallback(t *testing.T) {
	cm := &stubChatModel{
		errs:    []error{errors.New("400: unknown parameter response_format")},
		replies: []string{"", `{"strategy":"hybrid"}`},
	}
	out, err := NewClassifyChain(&stubModels{model: cm}).Invoke(context.Background(), &wfmodel.ClassifyInput{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "hybrid", out.Strategy)
	assert.Equal(t, 2, cm.calls)
}

func TestStageChain_ValidatesOutput(t *testing.T) {
	cm := &stubChatModel{replies: []string{`{"issues": []}`, `{"issues":[{"id":"I1","description":"lease formation"}],"summary":"one issue"}`}}
	c := NewStageChain(&stubModels{model: cm})
	in := &wfmodel.StageInput{Stage: entity.StageIssueIdentification, Question: "Is a verbal lease binding?"}

	_, err := c.RunStage(context.Background(), in)
	assert.Error(t, err)

	out, err := c.RunStage(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out.Issues, 1)
	assert.Equal(t, "I1", out.Issues[0].ID)
	assert.NotEmpty(t, out.Raw)
}

func TestStageChain_EmptyAnswerRejected(t *testing.T) {
	cm := &stubChatModel{replies: []string{`{"answer": "  ", "citations": []}`}}
	_, err := NewStageChain(&stubModels{model: cm}).RunStage(context.Background(), &wfmodel.StageInput{
		Stage: entity.StageAnswerComposition,
	})
	assert.Error(t, err)
}
