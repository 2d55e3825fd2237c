// Package reasoning 固定 8 阶段的法律推理链
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
)

var (
	// ErrGenerationUnavailable 阶段重试后仍失败
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrCancelled 在阶段边界发现取消
	ErrCancelled = errors.New("reasoning cancelled")
)

// StageError 记录失败的阶段序号
type StageError struct {
	Ordinal int
	Stage   entity.StageName
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Ordinal, e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error { return []error{ErrGenerationUnavailable, e.Err} }

// StageRunner 单阶段模型调用（workflow/chain.StageChain）
type StageRunner interface {
	RunStage(ctx context.Context, in *wfmodel.StageInput) (*wfmodel.StageOutput, error)
}

// StageStatus 阶段进度
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageRetrying  StageStatus = "retrying"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// Recorder 接收阶段进度并持久化步骤
type Recorder interface {
	StageEvent(ctx context.Context, ordinal int, stage entity.StageName, status StageStatus)
	RecordStep(ctx context.Context, step *entity.ReasoningStep) error
}

// RunInput 推理输入
type RunInput struct {
	RequestID string
	Query     entity.Query
	Strategy  entity.RetrievalStrategy
	Evidence  entity.EvidenceSet
	Recorder  Recorder
	// CancelCheck 在阶段之间调用，返回 true 表示应停止
	CancelCheck func(ctx context.Context) bool
}

// IssueCoverage 争点的证据覆盖度
type IssueCoverage struct {
	IssueID       string   `json:"issue_id"`
	Description   string   `json:"description"`
	DocumentIDs   []string `json:"document_ids"`
	EvidenceCount int      `json:"evidence_count"`
	LowConfidence bool     `json:"low_confidence"`
}

// Result 推理结果
type Result struct {
	Steps     []entity.ReasoningStep
	Coverage  []IssueCoverage
	Caveats   []string
	Answer    string
	Citations []entity.Citation
}

// LowConfidenceIssues 返回被标记为低置信度的争点
func (r *Result) LowConfidenceIssues() []string {
	var out []string
	for _, c := range r.Coverage {
		if c.LowConfidence {
			out = append(out, c.IssueID)
		}
	}
	return out
}
