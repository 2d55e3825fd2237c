// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"legal-rag-api/internal/domain/entity"
)

// TraceRepository 证据与推理步骤仓储接口
type TraceRepository interface {
	// SaveEvidence 替换会话的证据集合
	SaveEvidence(ctx context.Context, requestID string, set entity.EvidenceSet) error

	// ListEvidence 按 rank 获取证据
	ListEvidence(ctx context.Context, requestID string) (entity.EvidenceSet, error)

	// SaveStep 写入推理步骤，(request_id, ordinal) 唯一
	SaveStep(ctx context.Context, step *entity.ReasoningStep) error

	// ListSteps 按 ordinal 获取推理步骤
	ListSteps(ctx context.Context, requestID string) ([]*entity.ReasoningStep, error)

	// DeleteByRequests 删除会话的轨迹数据
	DeleteByRequests(ctx context.Context, requestIDs []string) error
}
