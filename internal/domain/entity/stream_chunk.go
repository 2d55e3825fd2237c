package entity

import "encoding/json"

// ChunkKind 流分片类型
type ChunkKind string

const (
	ChunkMeta      ChunkKind = "meta"
	ChunkStage     ChunkKind = "stage"
	ChunkAnswer    ChunkKind = "answer"
	ChunkCitations ChunkKind = "citations"
	ChunkComplete  ChunkKind = "complete"
	ChunkCancelled ChunkKind = "cancelled"
	ChunkError     ChunkKind = "error"
)

// StreamChunk 流分片；sequence_no 在同一 request_id 内严格递增
type StreamChunk struct {
	RequestID  string          `json:"request_id"`
	SequenceNo int64           `json:"sequence_no"`
	Kind       ChunkKind       `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	IsFinal    bool            `json:"is_final"`
}

// MetaPayload meta 分片内容
type MetaPayload struct {
	Strategy        RetrievalStrategy `json:"strategy"`
	EvidenceCount   int               `json:"evidence_count"`
	PartialEvidence bool              `json:"partial_evidence"`
}

// StagePayload 阶段进度
type StagePayload struct {
	Ordinal   int       `json:"ordinal"`
	StageName StageName `json:"stage_name"`
	Status    string    `json:"status"`
}

// AnswerPayload 答案增量
type AnswerPayload struct {
	Delta string `json:"delta"`
}

// Citation 引用
type Citation struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Rank       int    `json:"rank"`
}

// CitationsPayload 引用列表
type CitationsPayload struct {
	Citations []Citation `json:"citations"`
}

// FinalPayload 终止分片内容；complete 分片携带完整答案与检索来源
type FinalPayload struct {
	Status         SessionStatus `json:"status"`
	Reason         FailureReason `json:"reason,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Source         string        `json:"source,omitempty"`
	Content        string        `json:"content,omitempty"`
}

// NewChunk 组装分片，序号由缓冲区分配
func NewChunk(requestID string, kind ChunkKind, payload any) (StreamChunk, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return StreamChunk{}, err
	}
	return StreamChunk{
		RequestID: requestID,
		Kind:      kind,
		Payload:   raw,
		IsFinal:   kind == ChunkComplete || kind == ChunkCancelled || kind == ChunkError,
	}, nil
}
