// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"legal-rag-api/internal/domain/entity"
)

// TaskFilter 任务过滤条件
type TaskFilter struct {
	RequestID string
	TaskType  entity.TaskType
	Status    entity.TaskStatus
}

// TaskRepository 任务注册表仓储接口
type TaskRepository interface {
	// Create 登记任务
	Create(ctx context.Context, task *entity.TaskEntry) error

	// GetByID 根据 ID 获取任务，不存在时返回 nil
	GetByID(ctx context.Context, taskID string) (*entity.TaskEntry, error)

	// Transition 仅当当前状态属于 from 时写入 to，返回是否生效
	Transition(ctx context.Context, taskID string, from []entity.TaskStatus, to entity.TaskStatus, errMsg string) (bool, error)

	// Heartbeat 刷新 updated_at
	Heartbeat(ctx context.Context, taskID string) error

	// ListByRequest 获取某个会话的全部任务
	ListByRequest(ctx context.Context, requestID string) ([]*entity.TaskEntry, error)

	// List 分页查询任务
	List(ctx context.Context, filter *TaskFilter, pagination Pagination) (*PagedResult[*entity.TaskEntry], error)

	// DeleteBefore 删除早于 before 的终态任务，返回删除数
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
