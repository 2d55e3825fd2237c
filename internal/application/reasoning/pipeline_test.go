package reasoning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
	"legal-rag-api/pkg/retry"
)

// scriptedRunner 按阶段返回预设输出，可为某阶段注入前 n 次失败或阻塞
type scriptedRunner struct {
	mu       sync.Mutex
	calls    []entity.StageName
	failures map[entity.StageName]int
	// rejects 以 provider 不可重试错误失败的次数
	rejects map[entity.StageName]int
	hangs   map[entity.StageName]int
	outputs map[entity.StageName]*wfmodel.StageOutput
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{
		failures: map[entity.StageName]int{},
		rejects:  map[entity.StageName]int{},
		hangs:    map[entity.StageName]int{},
		outputs: map[entity.StageName]*wfmodel.StageOutput{
			entity.StageIssueIdentification: {Issues: []wfmodel.Issue{
				{ID: "I1", Description: "lease formation"},
				{ID: "I2", Description: "deposit deductions"},
			}},
			entity.StageLawNarrowing: {Mapping: []wfmodel.IssueEvidence{
				{IssueID: "I1", DocumentIDs: []string{"doc-a", "doc-b"}},
				{IssueID: "I2", DocumentIDs: []string{"doc-b", "doc-invented"}},
				{IssueID: "I9", DocumentIDs: []string{"doc-a"}},
			}},
			entity.StageConfidenceAssessment: {Caveats: []string{"deposit rules vary by lease"}},
			entity.StageAnswerComposition: {
				Answer:    "A verbal lease under one year is generally enforceable.",
				Citations: []string{"doc-b", "doc-invented", "doc-a", "doc-b"},
			},
		},
	}
}

func (r *scriptedRunner) RunStage(ctx context.Context, in *wfmodel.StageInput) (*wfmodel.StageOutput, error) {
	r.mu.Lock()
	r.calls = append(r.calls, in.Stage)
	hang := r.hangs[in.Stage] > 0
	if hang {
		r.hangs[in.Stage]--
	}
	fail := r.failures[in.Stage] > 0
	if fail {
		r.failures[in.Stage]--
	}
	reject := r.rejects[in.Stage] > 0
	if reject {
		r.rejects[in.Stage]--
	}
	r.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errors.New("provider returned malformed output")
	}
	if reject {
		return nil, retry.Permanent(errors.New("400 bad request from provider"))
	}
	if out, ok := r.outputs[in.Stage]; ok {
		cp := *out
		cp.Raw = `{"stage":"` + string(in.Stage) + `"}`
		return &cp, nil
	}
	return &wfmodel.StageOutput{Summary: "ok " + string(in.Stage), Raw: `{"summary":"ok"}`}, nil
}

type memRecorder struct {
	mu     sync.Mutex
	steps  []entity.ReasoningStep
	events []string
}

func (m *memRecorder) StageEvent(_ context.Context, ordinal int, stage entity.StageName, status StageStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, string(stage)+":"+string(status))
}

func (m *memRecorder) RecordStep(_ context.Context, step *entity.ReasoningStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, *step)
	return nil
}

func twoItemEvidence() entity.EvidenceSet {
	return entity.EvidenceSet{
		{Rank: 1, DocumentID: "doc-a", Title: "Property Code 91.001", PassageText: "a", FusedScore: 0.9},
		{Rank: 2, DocumentID: "doc-b", Title: "Property Code 92.104", PassageText: "b", FusedScore: 0.4},
	}
}

func testConfig() config.ReasoningConfig {
	return config.ReasoningConfig{
		MinEvidencePerIssue: 2,
		StageTimeout:        50 * time.Millisecond,
		StageAttempts:       2,
		RetryBackoff:        config.BackoffConfig{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 2},
	}
}

func runInput(rec Recorder) RunInput {
	return RunInput{
		RequestID: "req-1",
		Query:     entity.NewQuery("u1", "c1", "Is my verbal lease binding and can they keep my deposit?", nil),
		Strategy:  entity.StrategyHybrid,
		Evidence:  twoItemEvidence(),
		Recorder:  rec,
	}
}

func TestPipeline_StagesRunStrictlyInOrder(t *testing.T) {
	runner := newScriptedRunner()
	rec := &memRecorder{}
	res, err := NewPipeline(runner, testConfig()).Run(context.Background(), runInput(rec))
	require.NoError(t, err)

	assert.Equal(t, entity.Stages[:], runner.calls)
	require.Len(t, rec.steps, entity.StageCount)
	for i, step := range rec.steps {
		assert.Equal(t, i+1, step.Ordinal)
		assert.Equal(t, entity.Stages[i], step.StageName)
		assert.Equal(t, "req-1", step.RequestID)
		assert.Equal(t, 1, step.Attempts)
	}
	assert.Equal(t, res.Steps, rec.steps)
}

func TestPipeline_TopKTwoFlagsLowConfidence(t *testing.T) {
	res, err := NewPipeline(newScriptedRunner(), testConfig()).Run(context.Background(), runInput(&memRecorder{}))
	require.NoError(t, err)

	require.Len(t, res.Coverage, 2)
	assert.Equal(t, []string{"doc-a", "doc-b"}, res.Coverage[0].DocumentIDs)
	assert.False(t, res.Coverage[0].LowConfidence)
	// doc-invented is not in the evidence set, so I2 has only one supporting passage
	assert.Equal(t, []string{"doc-b"}, res.Coverage[1].DocumentIDs)
	assert.Equal(t, 1, res.Coverage[1].EvidenceCount)
	assert.True(t, res.Coverage[1].LowConfidence)
	assert.Equal(t, []string{"I2"}, res.LowConfidenceIssues())

	step2 := res.Steps[1]
	assert.ElementsMatch(t, []string{"doc-a", "doc-b"}, []string(step2.InputRefs))
	assert.NotContains(t, step2.OutputText, "I9")
}

func TestPipeline_ScoreThresholdAffectsCoverage(t *testing.T) {
	cfg := testConfig()
	cfg.MinEvidenceScore = 0.5
	res, err := NewPipeline(newScriptedRunner(), cfg).Run(context.Background(), runInput(&memRecorder{}))
	require.NoError(t, err)
	assert.Equal(t, []string{"I1", "I2"}, res.LowConfidenceIssues())
}

func TestPipeline_CitationsRestrictedToEvidence(t *testing.T) {
	res, err := NewPipeline(newScriptedRunner(), testConfig()).Run(context.Background(), runInput(&memRecorder{}))
	require.NoError(t, err)
	assert.Equal(t, []entity.Citation{
		{DocumentID: "doc-b", Title: "Property Code 92.104", Rank: 2},
		{DocumentID: "doc-a", Title: "Property Code 91.001", Rank: 1},
	}, res.Citations)
	assert.NotEmpty(t, res.Answer)
	assert.Equal(t, []string{"doc-b", "doc-a"}, []string(res.Steps[7].InputRefs))
}

func TestPipeline_StageFourTimeoutIsRetriedOnce(t *testing.T) {
	runner := newScriptedRunner()
	runner.hangs[entity.StageFactApplication] = 1
	rec := &memRecorder{}

	res, err := NewPipeline(runner, testConfig()).Run(context.Background(), runInput(rec))
	require.NoError(t, err)
	require.Len(t, res.Steps, entity.StageCount)
	assert.Equal(t, 2, res.Steps[3].Attempts)
	assert.Contains(t, rec.events, "fact_application:retrying")

	count := 0
	for _, s := range runner.calls {
		if s == entity.StageFactApplication {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func (r *scriptedRunner) callsFor(stage entity.StageName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.calls {
		if s == stage {
			n++
		}
	}
	return n
}

func TestPipeline_PermanentProviderErrorStillRetriedOnce(t *testing.T) {
	runner := newScriptedRunner()
	runner.rejects[entity.StageFactApplication] = 1
	rec := &memRecorder{}

	res, err := NewPipeline(runner, testConfig()).Run(context.Background(), runInput(rec))
	require.NoError(t, err)
	require.Len(t, res.Steps, entity.StageCount)
	assert.Equal(t, 2, runner.callsFor(entity.StageFactApplication))
	assert.Equal(t, 2, res.Steps[3].Attempts)
	assert.Contains(t, rec.events, "fact_application:retrying")
}

func TestPipeline_PermanentProviderErrorTwiceFailsStage(t *testing.T) {
	runner := newScriptedRunner()
	runner.rejects[entity.StageFactApplication] = 5
	rec := &memRecorder{}

	_, err := NewPipeline(runner, testConfig()).Run(context.Background(), runInput(rec))
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, se.Ordinal)
	assert.EqualError(t, se.Err, "400 bad request from provider")
	assert.Equal(t, 2, runner.callsFor(entity.StageFactApplication))
}

func TestPipeline_SecondFailureStopsAtOrdinal(t *testing.T) {
	runner := newScriptedRunner()
	runner.failures[entity.StageFactApplication] = 2
	rec := &memRecorder{}

	res, err := NewPipeline(runner, testConfig()).Run(context.Background(), runInput(rec))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationUnavailable)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, se.Ordinal)
	assert.Equal(t, entity.StageFactApplication, se.Stage)

	// completed steps are kept, nothing after the failure runs
	assert.Len(t, res.Steps, 3)
	assert.Len(t, rec.steps, 3)
	assert.NotContains(t, runner.calls, entity.StageCounterConsideration)
	assert.Contains(t, rec.events, "fact_application:failed")
}

func TestPipeline_CancelBetweenStages(t *testing.T) {
	runner := newScriptedRunner()
	in := runInput(&memRecorder{})
	checks := 0
	in.CancelCheck = func(context.Context) bool {
		checks++
		return checks > 2
	}

	res, err := NewPipeline(runner, testConfig()).Run(context.Background(), in)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Len(t, res.Steps, 2)
	assert.Len(t, runner.calls, 2)
}
