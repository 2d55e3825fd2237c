package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "legal-rag-api/internal/domain/service"
	wfmodel "legal-rag-api/internal/workflow/model"
	wfnode "legal-rag-api/internal/workflow/node"
	workflowport "legal-rag-api/internal/workflow/port"
	workflowprompt "legal-rag-api/internal/workflow/prompt"
)

// WorkflowClassifyIntent 分类调用的指标标签
const WorkflowClassifyIntent = "classify_intent"

// ClassifyChain template -> llm(temperature 0) -> json
type ClassifyChain struct {
	models workflowport.ChatModelProvider

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.ClassifyInput, *wfmodel.ClassifyOutput]
	chainErr  error
}

func NewClassifyChain(models workflowport.ChatModelProvider) *ClassifyChain {
	return &ClassifyChain{models: models}
}

func (c *ClassifyChain) Invoke(ctx context.Context, in *wfmodel.ClassifyInput) (*wfmodel.ClassifyOutput, error) {
	if c == nil || c.models == nil {
		return nil, fmt.Errorf("chat model provider not configured")
	}
	if in == nil {
		return nil, fmt.Errorf("input is nil")
	}
	chain, err := c.getChain()
	if err != nil {
		return nil, err
	}
	return chain.Invoke(ctx, in)
}

type classifyState struct {
	In       *wfmodel.ClassifyInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *ClassifyChain) getChain() (compose.Runnable[*wfmodel.ClassifyInput, *wfmodel.ClassifyOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *ClassifyChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.ClassifyInput, *wfmodel.ClassifyOutput], error) {
	chain := compose.NewChain[*wfmodel.ClassifyInput, *wfmodel.ClassifyOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.ClassifyInput) (*classifyState, error) {
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.PromptClassifyIntentV1)
			if err != nil {
				return nil, err
			}
			ctxText := strings.TrimSpace(in.Context)
			if ctxText == "" {
				ctxText = "(none)"
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"question": strings.TrimSpace(in.Question),
				"context":  ctxText,
			})
			if err != nil {
				return nil, err
			}
			return &classifyState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("classify.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *classifyState) (*classifyState, error) {
			provider := c.models.Resolve(strings.TrimSpace(st.In.Provider))
			ctx = llmctx.WithLLMCall(ctx, llmctx.LLMCall{Workflow: WorkflowClassifyIntent, Provider: provider})
			chatModel, err := c.models.ChatModel(ctx, provider)
			if err != nil {
				return nil, err
			}
			out, err := generateJSON(ctx, chatModel, st.Messages, model.WithTemperature(0))
			if err != nil {
				return nil, err
			}
			st.OutMsg = out
			return st, nil
		}),
		compose.WithNodeName("classify.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *classifyState) (*wfmodel.ClassifyOutput, error) {
			var out wfmodel.ClassifyOutput
			if _, err := wfnode.DecodeJSONObject(st.OutMsg.Content, &out); err != nil {
				return nil, err
			}
			out.Strategy = strings.ToLower(strings.TrimSpace(out.Strategy))
			return &out, nil
		}),
		compose.WithNodeName("classify.parse"),
	)

	return chain.Compile(ctx)
}
