package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"legal-rag-api/internal/application/retrieval"
	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/metrics"
	"legal-rag-api/pkg/retry"
	"legal-rag-api/pkg/tracer"
)

const (
	defaultStageTimeout  = 30 * time.Second
	defaultStageAttempts = 2
	defaultMinEvidence   = 2
	defaultEvidenceRunes = 600
	contextTurns         = 6
)

// Pipeline 严格顺序执行 8 个阶段
type Pipeline struct {
	runner  StageRunner
	limiter *rate.Limiter
	cfg     config.ReasoningConfig
}

func NewPipeline(runner StageRunner, cfg config.ReasoningConfig) *Pipeline {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = defaultStageTimeout
	}
	if cfg.StageAttempts <= 0 {
		cfg.StageAttempts = defaultStageAttempts
	}
	if cfg.MinEvidencePerIssue <= 0 {
		cfg.MinEvidencePerIssue = defaultMinEvidence
	}
	if cfg.MaxEvidenceRunes <= 0 {
		cfg.MaxEvidenceRunes = defaultEvidenceRunes
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.ProviderRPS > 0 {
		burst := cfg.ProviderBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.ProviderRPS), burst)
	}
	return &Pipeline{runner: runner, limiter: limiter, cfg: cfg}
}

// runState 在阶段之间传递的中间结论
type runState struct {
	in       RunInput
	evidence string
	prior    []string
	issues   []wfmodel.Issue
	mapping  map[string][]string
	mapped   []string
	coverage []IssueCoverage
}

// Run 执行推理链；已完成的步骤在出错时仍保留在 Result 中
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*Result, error) {
	ctx, span := tracer.Start(ctx, "reasoning.Pipeline.Run")
	defer span.End()

	st := &runState{
		in:       in,
		evidence: retrieval.BuildEvidenceContext(in.Evidence, 0, p.cfg.MaxEvidenceRunes),
	}
	res := &Result{}

	for i, stage := range entity.Stages {
		ordinal := i + 1
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if in.CancelCheck != nil && in.CancelCheck(ctx) {
			return res, ErrCancelled
		}

		p.event(ctx, in, ordinal, stage, StageStarted)
		start := time.Now()
		out, attempts, err := p.runStage(ctx, st, ordinal, stage)
		elapsed := time.Since(start)
		metrics.ReasoningStageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			metrics.ReasoningStageTotal.WithLabelValues(string(stage), "failed").Inc()
			p.event(ctx, in, ordinal, stage, StageFailed)
			logger.Error(ctx, "reasoning stage failed", err,
				"ordinal", ordinal,
				"stage", string(stage),
				"attempts", attempts,
			)
			span.RecordError(err)
			return res, &StageError{Ordinal: ordinal, Stage: stage, Err: err}
		}
		metrics.ReasoningStageTotal.WithLabelValues(string(stage), "success").Inc()

		refs, text := p.apply(st, res, stage, out)
		step := entity.ReasoningStep{
			RequestID:  in.RequestID,
			Ordinal:    ordinal,
			StageName:  stage,
			InputRefs:  refs,
			OutputText: text,
			Attempts:   attempts,
			DurationMs: elapsed.Milliseconds(),
		}
		if in.Recorder != nil {
			if err := in.Recorder.RecordStep(ctx, &step); err != nil {
				return res, fmt.Errorf("failed to record step %d: %w", ordinal, err)
			}
		}
		res.Steps = append(res.Steps, step)
		st.prior = append(st.prior, fmt.Sprintf("Stage %d (%s): %s", ordinal, stage, summarize(stage, out)))
		p.event(ctx, in, ordinal, stage, StageCompleted)
	}
	return res, nil
}

func (p *Pipeline) event(ctx context.Context, in RunInput, ordinal int, stage entity.StageName, status StageStatus) {
	if in.Recorder != nil {
		in.Recorder.StageEvent(ctx, ordinal, stage, status)
	}
}

// runStage 同一输入最多执行 StageAttempts 次
func (p *Pipeline) runStage(ctx context.Context, st *runState, ordinal int, stage entity.StageName) (*wfmodel.StageOutput, int, error) {
	ctx, span := tracer.Start(ctx, "reasoning.stage."+string(stage))
	defer span.End()

	if stage == entity.StageConfidenceAssessment {
		st.coverage = assessCoverage(st.in.Evidence, st.issues, st.mapping, p.cfg.MinEvidencePerIssue, p.cfg.MinEvidenceScore)
	}

	in := &wfmodel.StageInput{
		Provider: p.cfg.Provider,
		Stage:    stage,
		Question: st.in.Query.RawText,
		Context:  st.in.Query.ContextText(contextTurns),
		Strategy: string(st.in.Strategy),
		Evidence: st.evidence,
		Prior:    strings.Join(st.prior, "\n"),
	}
	if stage == entity.StageConfidenceAssessment {
		in.Coverage = describeCoverage(st.coverage)
	}

	policy := retry.Policy{
		MaxAttempts:    p.cfg.StageAttempts,
		Initial:        p.cfg.RetryBackoff.Initial,
		Max:            p.cfg.RetryBackoff.Max,
		Multiplier:     p.cfg.RetryBackoff.Multiplier,
		AttemptTimeout: p.cfg.StageTimeout,
	}
	attempts := 0
	out, err := retry.Do(ctx, policy, func(ctx context.Context) (*wfmodel.StageOutput, error) {
		attempts++
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		// 阶段级重试不区分错误类型：provider 标记为不可重试的错误也再执行一次
		out, err := p.runner.RunStage(ctx, in)
		return out, retry.Retryable(err)
	}, func(attempt int, err error) {
		metrics.ReasoningStageTotal.WithLabelValues(string(stage), "retry").Inc()
		logger.Warn(ctx, "reasoning stage retry",
			"ordinal", ordinal,
			"stage", string(stage),
			"attempt", attempt,
			"error", err.Error(),
		)
		p.event(ctx, st.in, ordinal, stage, StageRetrying)
	})
	if err != nil {
		span.RecordError(err)
		return nil, attempts, err
	}
	if out == nil {
		return nil, attempts, errors.New("empty stage output")
	}
	return out, attempts, nil
}

// apply 吸收阶段输出，返回该步骤的 input_refs 与持久化文本
func (p *Pipeline) apply(st *runState, res *Result, stage entity.StageName, out *wfmodel.StageOutput) ([]string, string) {
	evidence := st.in.Evidence
	switch stage {
	case entity.StageIssueIdentification:
		st.issues = out.Issues
		return evidence.DocumentIDs(), out.Raw

	case entity.StageLawNarrowing:
		st.mapping = sanitizeMapping(evidence, st.issues, out.Mapping)
		var union []string
		for _, is := range st.issues {
			union = append(union, st.mapping[is.ID]...)
		}
		st.mapped = validDocs(evidence, union)
		return st.mapped, marshalOutput(struct {
			Mapping map[string][]string `json:"mapping"`
			Summary string              `json:"summary,omitempty"`
		}{st.mapping, out.Summary})

	case entity.StageRuleExtraction:
		var ids []string
		for _, r := range out.Rules {
			ids = append(ids, r.DocumentIDs...)
		}
		if refs := validDocs(evidence, ids); len(refs) > 0 {
			return refs, out.Raw
		}
		return st.mapped, out.Raw

	case entity.StageConfidenceAssessment:
		res.Coverage = st.coverage
		res.Caveats = out.Caveats
		return mappedRefs(st), marshalOutput(struct {
			Coverage []IssueCoverage `json:"coverage"`
			Caveats  []string        `json:"caveats,omitempty"`
			Summary  string          `json:"summary,omitempty"`
		}{st.coverage, out.Caveats, out.Summary})

	case entity.StageAnswerComposition:
		res.Answer = strings.TrimSpace(out.Answer)
		res.Citations = filterCitations(evidence, out.Citations)
		refs := make([]string, 0, len(res.Citations))
		for _, c := range res.Citations {
			refs = append(refs, c.DocumentID)
		}
		return refs, marshalOutput(struct {
			Answer    string            `json:"answer"`
			Citations []entity.Citation `json:"citations"`
		}{res.Answer, res.Citations})

	default:
		return st.mapped, out.Raw
	}
}

func mappedRefs(st *runState) []string {
	var ids []string
	for _, c := range st.coverage {
		ids = append(ids, c.DocumentIDs...)
	}
	return validDocs(st.in.Evidence, ids)
}

func marshalOutput(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// summarize 供后续阶段参考的简短描述
func summarize(stage entity.StageName, out *wfmodel.StageOutput) string {
	parts := make([]string, 0, 4)
	switch stage {
	case entity.StageIssueIdentification:
		for _, is := range out.Issues {
			parts = append(parts, fmt.Sprintf("%s: %s", is.ID, is.Description))
		}
	case entity.StageLawNarrowing:
		for _, m := range out.Mapping {
			parts = append(parts, fmt.Sprintf("%s -> %s", m.IssueID, strings.Join(m.DocumentIDs, ", ")))
		}
	case entity.StageRuleExtraction:
		for _, r := range out.Rules {
			parts = append(parts, fmt.Sprintf("%s: %s", r.IssueID, r.Rule))
		}
	case entity.StageFactApplication:
		for _, a := range out.Applications {
			parts = append(parts, fmt.Sprintf("%s: %s", a.IssueID, a.Analysis))
		}
	case entity.StageCounterConsideration:
		parts = append(parts, out.Counterpoints...)
	case entity.StageConfidenceAssessment:
		parts = append(parts, out.Caveats...)
	}
	if s := strings.TrimSpace(out.Summary); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
