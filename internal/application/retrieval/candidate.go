package retrieval

import (
	"time"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
)

// Candidate 单通道召回的候选段落，Score 为通道原始得分
type Candidate struct {
	DocumentID string
	PassageID  string
	Title      string
	Text       string
	Tags       []string
	Score      float64
	// ExactMatch 元数据精确命中
	ExactMatch bool
}

// ChannelResult 单通道结果
type ChannelResult struct {
	Channel    entity.Channel
	Candidates []Candidate
	Err        error
}

// ChannelStatus 通道执行情况
type ChannelStatus struct {
	Channel  entity.Channel `json:"channel"`
	Count    int            `json:"count"`
	Failed   bool           `json:"failed"`
	Duration time.Duration  `json:"duration"`
}

// Report 检索报告
type Report struct {
	Strategy        entity.RetrievalStrategy  `json:"strategy"`
	Weights         config.FusionWeights      `json:"weights"`
	Channels        []ChannelStatus           `json:"channels"`
	PartialEvidence bool                      `json:"partial_evidence"`
	Filter          repository.MetadataFilter `json:"-"`
}
