package model

import "legal-rag-api/internal/domain/entity"

// ClassifyInput 意图分类输入
type ClassifyInput struct {
	Provider string
	Question string
	Context  string
}

// ClassifyOutput 模型返回的策略标签
type ClassifyOutput struct {
	Strategy string `json:"strategy"`
}

// StageInput 单个推理阶段的输入
type StageInput struct {
	Provider string
	Stage    entity.StageName
	Question string
	Context  string
	Strategy string
	// Evidence 已格式化的证据块
	Evidence string
	// Prior 之前各阶段的输出摘要
	Prior string
	// Coverage 第 7 阶段使用的覆盖度结论
	Coverage string
}

// Issue 法律争点
type Issue struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// IssueEvidence 争点与其依据的证据
type IssueEvidence struct {
	IssueID     string   `json:"issue_id"`
	DocumentIDs []string `json:"document_ids"`
}

// Rule 从证据中提炼的规则
type Rule struct {
	IssueID     string   `json:"issue_id"`
	Rule        string   `json:"rule"`
	DocumentIDs []string `json:"document_ids"`
}

// Application 规则对事实的适用
type Application struct {
	IssueID  string `json:"issue_id"`
	Analysis string `json:"analysis"`
}

// StageOutput 各阶段共用的 JSON 输出结构，未用到的字段为空
type StageOutput struct {
	Summary       string          `json:"summary,omitempty"`
	Issues        []Issue         `json:"issues,omitempty"`
	Mapping       []IssueEvidence `json:"mapping,omitempty"`
	Rules         []Rule          `json:"rules,omitempty"`
	Applications  []Application   `json:"applications,omitempty"`
	Counterpoints []string        `json:"counterpoints,omitempty"`
	Caveats       []string        `json:"caveats,omitempty"`
	Answer        string          `json:"answer,omitempty"`
	Citations     []string        `json:"citations,omitempty"`

	// Raw 模型原始 JSON（截取后）
	Raw string `json:"-"`
}
