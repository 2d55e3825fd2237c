// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
)

// SessionRepository 流会话仓储实现
type SessionRepository struct {
	client *Client
}

// NewSessionRepository 创建流会话仓储
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Create 创建会话
func (r *SessionRepository) Create(ctx context.Context, session *entity.StreamSession) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID 根据 request_id 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, requestID string) (*entity.StreamSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.StreamSession
	if err := db.First(&session, "request_id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Transition 条件更新状态：WHERE request_id = ? AND status = ?
func (r *SessionRepository) Transition(ctx context.Context, t repository.SessionTransition) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Transition")
	defer span.End()

	updates := map[string]interface{}{
		"status":     t.To,
		"updated_at": time.Now(),
	}
	if t.Reason != entity.ReasonNone {
		updates["failure_reason"] = t.Reason
	}
	if t.FailedStage > 0 {
		updates["failed_stage"] = t.FailedStage
	}

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.StreamSession{}).
		Where("request_id = ? AND status = ?", t.RequestID, t.From).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to transition session: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkPartialEvidence 标记部分证据
func (r *SessionRepository) MarkPartialEvidence(ctx context.Context, requestID string) error {
	return r.update(ctx, "postgres.SessionRepository.MarkPartialEvidence", requestID, map[string]interface{}{
		"partial_evidence": true,
		"updated_at":       time.Now(),
	})
}

// SetStrategy 记录检索策略
func (r *SessionRepository) SetStrategy(ctx context.Context, requestID string, strategy entity.RetrievalStrategy) error {
	return r.update(ctx, "postgres.SessionRepository.SetStrategy", requestID, map[string]interface{}{
		"strategy":   strategy,
		"updated_at": time.Now(),
	})
}

// Touch 刷新 updated_at
func (r *SessionRepository) Touch(ctx context.Context, requestID string) error {
	return r.update(ctx, "postgres.SessionRepository.Touch", requestID, map[string]interface{}{
		"updated_at": time.Now(),
	})
}

func (r *SessionRepository) update(ctx context.Context, spanName, requestID string, updates map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.StreamSession{}).Where("request_id = ?", requestID).Updates(updates).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// RecordProduced 推进已生产序号
func (r *SessionRepository) RecordProduced(ctx context.Context, requestID string, seq int64) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.RecordProduced")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.StreamSession{}).
		Where("request_id = ? AND last_sequence_no < ?", requestID, seq).
		Updates(map[string]interface{}{"last_sequence_no": seq, "updated_at": time.Now()}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record produced sequence: %w", err)
	}
	return nil
}

// AdvanceDelivered 推进已投递序号，不刷新 updated_at
func (r *SessionRepository) AdvanceDelivered(ctx context.Context, requestID string, seq int64) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.AdvanceDelivered")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.StreamSession{}).
		Where("request_id = ? AND delivered_sequence_no < ?", requestID, seq).
		UpdateColumn("delivered_sequence_no", seq).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to advance delivered sequence: %w", err)
	}
	return nil
}

// CountActiveByUser 统计用户的非终态会话数
func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.CountActiveByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var count int64
	if err := db.Model(&entity.StreamSession{}).
		Where("user_id = ? AND status IN ?", userID, entity.ActiveStatuses).
		Count(&count).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// ListStale 获取长时间未更新的非终态会话
func (r *SessionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.StreamSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.ListStale")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var sessions []*entity.StreamSession
	if err := db.Where("status IN ? AND updated_at < ?", entity.ActiveStatuses, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	return sessions, nil
}

// ListTerminalBefore 获取过期的终态会话 ID
func (r *SessionRepository) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.ListTerminalBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var ids []string
	if err := db.Model(&entity.StreamSession{}).
		Where("status IN ? AND updated_at < ?",
			[]entity.SessionStatus{entity.SessionCompleted, entity.SessionFailed, entity.SessionCancelled}, before).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("request_id", &ids).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return ids, nil
}

// Delete 批量删除会话
func (r *SessionRepository) Delete(ctx context.Context, requestIDs []string) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Delete")
	defer span.End()

	if len(requestIDs) == 0 {
		return 0, nil
	}
	db := getDB(ctx, r.client.db)
	result := db.Where("request_id IN ?", requestIDs).Delete(&entity.StreamSession{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
