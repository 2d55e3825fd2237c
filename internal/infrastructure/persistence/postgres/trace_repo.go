// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"legal-rag-api/internal/domain/entity"
)

// TraceRepository 证据与推理步骤仓储实现
type TraceRepository struct {
	client *Client
}

// NewTraceRepository 创建轨迹仓储
func NewTraceRepository(client *Client) *TraceRepository {
	return &TraceRepository{client: client}
}

// SaveEvidence 替换会话的证据集合
func (r *TraceRepository) SaveEvidence(ctx context.Context, requestID string, set entity.EvidenceSet) error {
	ctx, span := tracer.Start(ctx, "postgres.TraceRepository.SaveEvidence")
	defer span.End()

	rows := make([]entity.EvidenceItem, len(set))
	for i, it := range set {
		it.ID = 0
		it.RequestID = requestID
		rows[i] = it
	}

	db := getDB(ctx, r.client.db)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_id = ?", requestID).Delete(&entity.EvidenceItem{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save evidence: %w", err)
	}
	return nil
}

// ListEvidence 按 rank 获取证据
func (r *TraceRepository) ListEvidence(ctx context.Context, requestID string) (entity.EvidenceSet, error) {
	ctx, span := tracer.Start(ctx, "postgres.TraceRepository.ListEvidence")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var items []entity.EvidenceItem
	if err := db.Where("request_id = ?", requestID).Order("rank ASC").Find(&items).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	return entity.EvidenceSet(items), nil
}

// SaveStep 写入推理步骤，重复 ordinal 覆盖
func (r *TraceRepository) SaveStep(ctx context.Context, step *entity.ReasoningStep) error {
	ctx, span := tracer.Start(ctx, "postgres.TraceRepository.SaveStep")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}, {Name: "ordinal"}},
		DoUpdates: clause.AssignmentColumns([]string{"stage_name", "input_refs", "output_text", "attempts", "duration_ms"}),
	}).Create(step).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save reasoning step: %w", err)
	}
	return nil
}

// ListSteps 按 ordinal 获取推理步骤
func (r *TraceRepository) ListSteps(ctx context.Context, requestID string) ([]*entity.ReasoningStep, error) {
	ctx, span := tracer.Start(ctx, "postgres.TraceRepository.ListSteps")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var steps []*entity.ReasoningStep
	if err := db.Where("request_id = ?", requestID).Order("ordinal ASC").Find(&steps).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list reasoning steps: %w", err)
	}
	return steps, nil
}

// DeleteByRequests 删除会话的轨迹数据
func (r *TraceRepository) DeleteByRequests(ctx context.Context, requestIDs []string) error {
	ctx, span := tracer.Start(ctx, "postgres.TraceRepository.DeleteByRequests")
	defer span.End()

	if len(requestIDs) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Where("request_id IN ?", requestIDs).Delete(&entity.EvidenceItem{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	if err := db.Where("request_id IN ?", requestIDs).Delete(&entity.ReasoningStep{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete reasoning steps: %w", err)
	}
	return nil
}
