// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"legal-rag-api/internal/domain/entity"
)

// SessionTransition 条件状态迁移
type SessionTransition struct {
	RequestID   string
	From        entity.SessionStatus
	To          entity.SessionStatus
	Reason      entity.FailureReason
	FailedStage int
}

// SessionRepository 流会话仓储接口
type SessionRepository interface {
	// Create 创建会话
	Create(ctx context.Context, session *entity.StreamSession) error

	// GetByID 根据 request_id 获取会话，不存在时返回 nil
	GetByID(ctx context.Context, requestID string) (*entity.StreamSession, error)

	// Transition 仅当当前状态等于 From 时写入 To，返回是否生效
	Transition(ctx context.Context, t SessionTransition) (bool, error)

	// MarkPartialEvidence 标记部分证据
	MarkPartialEvidence(ctx context.Context, requestID string) error

	// SetStrategy 记录检索策略
	SetStrategy(ctx context.Context, requestID string, strategy entity.RetrievalStrategy) error

	// RecordProduced 推进已生产序号（只增不减）
	RecordProduced(ctx context.Context, requestID string, seq int64) error

	// AdvanceDelivered 推进已投递序号（只增不减）
	AdvanceDelivered(ctx context.Context, requestID string, seq int64) error

	// Touch 刷新 updated_at
	Touch(ctx context.Context, requestID string) error

	// CountActiveByUser 统计用户的非终态会话数
	CountActiveByUser(ctx context.Context, userID string) (int64, error)

	// ListStale 获取 updated_at 早于 before 的非终态会话
	ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.StreamSession, error)

	// ListTerminalBefore 获取 updated_at 早于 before 的终态会话 ID
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]string, error)

	// Delete 批量删除会话，返回删除数
	Delete(ctx context.Context, requestIDs []string) (int64, error)
}
