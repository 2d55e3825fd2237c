package entity

import "time"

// SessionStatus 流会话状态
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionRetrieving SessionStatus = "retrieving"
	SessionReasoning  SessionStatus = "reasoning"
	SessionStreaming  SessionStatus = "streaming"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// ActiveStatuses 非终态
var ActiveStatuses = []SessionStatus{SessionPending, SessionRetrieving, SessionReasoning, SessionStreaming}

// IsTerminal 是否为终态
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// CanTransition 状态迁移是否合法：主链路单向前进，任何非终态可进入 failed/cancelled
func CanTransition(from, to SessionStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case SessionFailed, SessionCancelled:
		return true
	case SessionRetrieving:
		return from == SessionPending
	case SessionReasoning:
		return from == SessionRetrieving
	case SessionStreaming:
		return from == SessionReasoning
	case SessionCompleted:
		return from == SessionStreaming
	}
	return false
}

// FailureReason 对外暴露的粗粒度原因码
type FailureReason string

const (
	ReasonNone                  FailureReason = ""
	ReasonRetrievalUnavailable  FailureReason = "retrieval_unavailable"
	ReasonGenerationUnavailable FailureReason = "generation_unavailable"
	ReasonCapacityExceeded      FailureReason = "capacity_exceeded"
	ReasonOrphaned              FailureReason = "orphaned"
	ReasonCancelled             FailureReason = "cancelled"
)

// StreamSession 流会话
type StreamSession struct {
	RequestID      string            `json:"request_id" gorm:"type:varchar(64);primaryKey"`
	UserID         string            `json:"user_id" gorm:"type:varchar(128);not null;index"`
	ConversationID string            `json:"conversation_id" gorm:"type:varchar(128)"`
	Question       string            `json:"question" gorm:"type:text;not null"`
	Status         SessionStatus     `json:"status" gorm:"type:varchar(16);not null;index:idx_sessions_status_updated,priority:1"`
	Strategy       RetrievalStrategy `json:"strategy,omitempty" gorm:"type:varchar(32)"`
	FailureReason  FailureReason     `json:"failure_reason,omitempty" gorm:"type:varchar(32)"`
	FailedStage    int               `json:"failed_stage,omitempty"`
	// PartialEvidence 部分检索通道失败时置位
	PartialEvidence bool      `json:"partial_evidence"`
	LastSequenceNo  int64     `json:"last_sequence_no"`
	DeliveredSeqNo  int64     `json:"delivered_sequence_no" gorm:"column:delivered_sequence_no"`
	OwnerInstance   string    `json:"owner_instance,omitempty" gorm:"type:varchar(128)"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at" gorm:"index:idx_sessions_status_updated,priority:2"`
}

// TableName 指定表名
func (StreamSession) TableName() string {
	return "stream_sessions"
}

// NewStreamSession 创建待处理会话
func NewStreamSession(requestID string, q Query, owner string) *StreamSession {
	now := time.Now()
	return &StreamSession{
		RequestID:      requestID,
		UserID:         q.UserID,
		ConversationID: q.ConversationID,
		Question:       q.RawText,
		Status:         SessionPending,
		OwnerInstance:  owner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
