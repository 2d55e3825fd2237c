package chain

import (
	"context"
	"fmt"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	wfnode "legal-rag-api/internal/workflow/node"
	workflowprompt "legal-rag-api/internal/workflow/prompt"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/retry"
)

var defaultPromptRegistry = workflowprompt.NewRegistry()

func jsonObjectOption() model.Option {
	return openaiopts.WithExtraFields(map[string]any{
		"response_format": map[string]any{"type": "json_object"},
	})
}

// generateJSON 请求 JSON 输出；provider 不支持 response_format 时退化为纯 prompt 约束
func generateJSON(ctx context.Context, chatModel model.BaseChatModel, msgs []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	withFormat := append(append([]model.Option{}, opts...), jsonObjectOption())
	out, err := chatModel.Generate(ctx, msgs, withFormat...)
	if err != nil && wfnode.IsResponseFormatUnsupportedError(err) {
		logger.Warn(ctx, "llm json response_format not supported, fallback to prompt-only",
			"error", err.Error(),
		)
		out, err = chatModel.Generate(ctx, msgs, opts...)
	}
	if err != nil {
		if wfnode.IsPermanentLLMError(err) {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("empty llm response")
	}
	return out, nil
}
