package entity

import (
	"time"

	"github.com/lib/pq"
)

// StageName 推理阶段名
type StageName string

const (
	StageIssueIdentification  StageName = "issue_identification"
	StageLawNarrowing         StageName = "law_narrowing"
	StageRuleExtraction       StageName = "rule_extraction"
	StageFactApplication      StageName = "fact_application"
	StageCounterConsideration StageName = "counter_consideration"
	StageCrossIssueSynthesis  StageName = "cross_issue_synthesis"
	StageConfidenceAssessment StageName = "confidence_assessment"
	StageAnswerComposition    StageName = "answer_composition"
)

// Stages 固定的 8 个阶段，下标 +1 即 ordinal
var Stages = [...]StageName{
	StageIssueIdentification,
	StageLawNarrowing,
	StageRuleExtraction,
	StageFactApplication,
	StageCounterConsideration,
	StageCrossIssueSynthesis,
	StageConfidenceAssessment,
	StageAnswerComposition,
}

// StageCount 阶段数
const StageCount = len(Stages)

// Ordinal 返回阶段序号（1..8），未知阶段返回 0
func (s StageName) Ordinal() int {
	for i, v := range Stages {
		if v == s {
			return i + 1
		}
	}
	return 0
}

// ReasoningStep 推理步骤
type ReasoningStep struct {
	ID         uint64         `json:"-" gorm:"primaryKey;autoIncrement"`
	RequestID  string         `json:"-" gorm:"type:varchar(64);not null;uniqueIndex:uk_steps_request_ordinal,priority:1"`
	Ordinal    int            `json:"ordinal" gorm:"not null;uniqueIndex:uk_steps_request_ordinal,priority:2"`
	StageName  StageName      `json:"stage_name" gorm:"type:varchar(32);not null"`
	InputRefs  pq.StringArray `json:"input_refs" gorm:"type:text[]"`
	OutputText string         `json:"output_text" gorm:"type:text"`
	Attempts   int            `json:"attempts"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (ReasoningStep) TableName() string {
	return "reasoning_steps"
}
