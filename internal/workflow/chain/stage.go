package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"legal-rag-api/internal/domain/entity"
	llmctx "legal-rag-api/internal/domain/service"
	wfmodel "legal-rag-api/internal/workflow/model"
	wfnode "legal-rag-api/internal/workflow/node"
	workflowport "legal-rag-api/internal/workflow/port"
	workflowprompt "legal-rag-api/internal/workflow/prompt"
)

// maxPriorRunes 前序阶段摘要注入 Prompt 的上限，超出时保留最近的阶段
const maxPriorRunes = 6000

// StageChain 执行单个推理阶段：template -> llm -> json
type StageChain struct {
	models workflowport.ChatModelProvider

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.StageInput, *wfmodel.StageOutput]
	chainErr  error
}

func NewStageChain(models workflowport.ChatModelProvider) *StageChain {
	return &StageChain{models: models}
}

// RunStage 执行阶段并校验输出
func (c *StageChain) RunStage(ctx context.Context, in *wfmodel.StageInput) (*wfmodel.StageOutput, error) {
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

type stageState struct {
	In       *wfmodel.StageInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *StageChain) getChain() (compose.Runnable[*wfmodel.StageInput, *wfmodel.StageOutput], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *StageChain) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.StageInput, *wfmodel.StageOutput], error) {
	chain := compose.NewChain[*wfmodel.StageInput, *wfmodel.StageOutput]()

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, in *wfmodel.StageInput) (*stageState, error) {
			tpl, err := defaultPromptRegistry.ChatTemplate(workflowprompt.StagePromptID(in.Stage))
			if err != nil {
				return nil, err
			}
			msgs, err := tpl.Format(ctx, map[string]any{
				"question": strings.TrimSpace(in.Question),
				"context":  wfnode.PromptSlot(in.Context),
				"strategy": in.Strategy,
				"evidence": wfnode.PromptSlot(in.Evidence),
				"prior":    wfnode.PromptSlot(wfnode.TailByRunes(in.Prior, maxPriorRunes)),
				"coverage": wfnode.PromptSlot(in.Coverage),
			})
			if err != nil {
				return nil, err
			}
			return &stageState{In: in, Messages: msgs}, nil
		}),
		compose.WithNodeName("stage.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *stageState) (*stageState, error) {
			provider := c.models.Resolve(strings.TrimSpace(st.In.Provider))
			ctx = llmctx.WithLLMCall(ctx, llmctx.LLMCall{Workflow: "reasoning", Provider: provider, Stage: string(st.In.Stage)})
			chatModel, err := c.models.ChatModel(ctx, provider)
			if err != nil {
				return nil, err
			}
			out, err := generateJSON(ctx, chatModel, st.Messages)
			if err != nil {
				return nil, err
			}
			st.OutMsg = out
			return st, nil
		}),
		compose.WithNodeName("stage.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *stageState) (*wfmodel.StageOutput, error) {
			var out wfmodel.StageOutput
			raw, err := wfnode.DecodeJSONObject(st.OutMsg.Content, &out)
			if err != nil {
				return nil, err
			}
			out.Raw = raw
			if err := validateStageOutput(st.In.Stage, &out); err != nil {
				return nil, err
			}
			return &out, nil
		}),
		compose.WithNodeName("stage.parse"),
	)

	return chain.Compile(ctx)
}

// validateStageOutput 缺少阶段必需字段视为输出不合格
func validateStageOutput(stage entity.StageName, out *wfmodel.StageOutput) error {
	switch stage {
	case entity.StageIssueIdentification:
		if len(out.Issues) == 0 {
			return fmt.Errorf("stage %s: no issues in output", stage)
		}
	case entity.StageAnswerComposition:
		if strings.TrimSpace(out.Answer) == "" {
			return fmt.Errorf("stage %s: empty answer", stage)
		}
	default:
		if strings.TrimSpace(out.Summary) == "" && len(out.Mapping) == 0 && len(out.Rules) == 0 &&
			len(out.Applications) == 0 && len(out.Counterpoints) == 0 && len(out.Caveats) == 0 {
			return fmt.Errorf("stage %s: empty output", stage)
		}
	}
	return nil
}
