// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"time"

	"legal-rag-api/internal/application/registry"
	"legal-rag-api/internal/domain/entity"
)

// ContextTurn 会话上下文轮次
type ContextTurn struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// ChatStartRequest 发起问答请求
type ChatStartRequest struct {
	Question            string        `json:"question" binding:"required,max=4000"`
	ConversationID      string        `json:"conversation_id" binding:"required,max=128"`
	ConversationContext []ContextTurn `json:"conversation_context,omitempty" binding:"max=50,dive"`
}

// ToTurns 转换为领域上下文
func (r *ChatStartRequest) ToTurns() []entity.ContextTurn {
	if r == nil || len(r.ConversationContext) == 0 {
		return nil
	}
	out := make([]entity.ContextTurn, 0, len(r.ConversationContext))
	for _, t := range r.ConversationContext {
		out = append(out, entity.ContextTurn{Role: t.Role, Content: t.Content})
	}
	return out
}

// ChatStartResponse 发起问答响应
type ChatStartResponse struct {
	RequestID   string `json:"request_id"`
	Status      string `json:"status"`
	StreamURL   string `json:"stream_url"`
	StreamToken string `json:"stream_token,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// ChatCancelResponse 取消响应
type ChatCancelResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// SessionResponse 会话状态
type SessionResponse struct {
	RequestID       string `json:"request_id"`
	ConversationID  string `json:"conversation_id"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	FailedStage     int    `json:"failed_stage,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	PartialEvidence bool   `json:"partial_evidence"`
	LastSequenceNo  int64  `json:"last_sequence_no"`
	DeliveredSeqNo  int64  `json:"delivered_sequence_no"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// ToSessionResponse 转换会话，不暴露 owner 与原始错误
func ToSessionResponse(s *entity.StreamSession) *SessionResponse {
	if s == nil {
		return nil
	}
	return &SessionResponse{
		RequestID:       s.RequestID,
		ConversationID:  s.ConversationID,
		Status:          string(s.Status),
		Reason:          string(s.FailureReason),
		FailedStage:     s.FailedStage,
		Strategy:        string(s.Strategy),
		PartialEvidence: s.PartialEvidence,
		LastSequenceNo:  s.LastSequenceNo,
		DeliveredSeqNo:  s.DeliveredSeqNo,
		CreatedAt:       formatTime(s.CreatedAt),
		UpdatedAt:       formatTime(s.UpdatedAt),
	}
}

// EvidenceResponse 证据条目
type EvidenceResponse struct {
	Rank           int      `json:"rank"`
	DocumentID     string   `json:"document_id"`
	Title          string   `json:"title,omitempty"`
	PassageText    string   `json:"passage_text"`
	SemanticScore  float64  `json:"semantic_score"`
	KeywordScore   float64  `json:"keyword_score"`
	MetadataMatch  bool     `json:"metadata_match"`
	MetadataTags   []string `json:"metadata_tags,omitempty"`
	FusedScore     float64  `json:"fused_score"`
	SourceChannels []string `json:"source_channels"`
}

// StepResponse 推理步骤
type StepResponse struct {
	Ordinal    int      `json:"ordinal"`
	StageName  string   `json:"stage_name"`
	InputRefs  []string `json:"input_refs"`
	OutputText string   `json:"output_text"`
	Attempts   int      `json:"attempts"`
	DurationMs int64    `json:"duration_ms"`
}

// TraceResponse 已完成会话的推理轨迹
type TraceResponse struct {
	Session  *SessionResponse   `json:"session"`
	Evidence []EvidenceResponse `json:"evidence"`
	Steps    []StepResponse     `json:"steps"`
}

// ToTraceResponse 转换推理轨迹
func ToTraceResponse(t *registry.Trace) *TraceResponse {
	if t == nil {
		return nil
	}
	resp := &TraceResponse{
		Session:  ToSessionResponse(t.Session),
		Evidence: make([]EvidenceResponse, 0, len(t.Evidence)),
		Steps:    make([]StepResponse, 0, len(t.Steps)),
	}
	for _, e := range t.Evidence {
		resp.Evidence = append(resp.Evidence, EvidenceResponse{
			Rank:           e.Rank,
			DocumentID:     e.DocumentID,
			Title:          e.Title,
			PassageText:    e.PassageText,
			SemanticScore:  e.SemanticScore,
			KeywordScore:   e.KeywordScore,
			MetadataMatch:  e.MetadataMatch,
			MetadataTags:   e.MetadataTags,
			FusedScore:     e.FusedScore,
			SourceChannels: e.SourceChannels,
		})
	}
	for _, s := range t.Steps {
		resp.Steps = append(resp.Steps, StepResponse{
			Ordinal:    s.Ordinal,
			StageName:  string(s.StageName),
			InputRefs:  s.InputRefs,
			OutputText: s.OutputText,
			Attempts:   s.Attempts,
			DurationMs: s.DurationMs,
		})
	}
	return resp
}

// TaskResponse 任务条目
type TaskResponse struct {
	TaskID    string `json:"task_id"`
	RequestID string `json:"request_id"`
	TaskType  string `json:"task_type"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ToTaskResponses 转换任务列表
func ToTaskResponses(tasks []*entity.TaskEntry) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskResponse{
			TaskID:    t.TaskID,
			RequestID: t.RequestID,
			TaskType:  string(t.TaskType),
			Status:    string(t.Status),
			CreatedAt: formatTime(t.CreatedAt),
			UpdatedAt: formatTime(t.UpdatedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
