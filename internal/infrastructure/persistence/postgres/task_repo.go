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

// TaskRepository 任务注册表仓储实现
type TaskRepository struct {
	client *Client
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(client *Client) *TaskRepository {
	return &TaskRepository{client: client}
}

// Create 登记任务
func (r *TaskRepository) Create(ctx context.Context, task *entity.TaskEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(task).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取任务
func (r *TaskRepository) GetByID(ctx context.Context, taskID string) (*entity.TaskEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var task entity.TaskEntry
	if err := db.First(&task, "task_id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Transition 条件更新任务状态
func (r *TaskRepository) Transition(ctx context.Context, taskID string, from []entity.TaskStatus, to entity.TaskStatus, errMsg string) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.Transition")
	defer span.End()

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}

	db := getDB(ctx, r.client.db)
	result := db.Model(&entity.TaskEntry{}).
		Where("task_id = ? AND status IN ?", taskID, from).
		Updates(updates)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to transition task: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Heartbeat 刷新任务心跳
func (r *TaskRepository) Heartbeat(ctx context.Context, taskID string) error {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.Heartbeat")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Model(&entity.TaskEntry{}).
		Where("task_id = ?", taskID).
		UpdateColumn("updated_at", time.Now()).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to heartbeat task: %w", err)
	}
	return nil
}

// ListByRequest 获取会话的全部任务
func (r *TaskRepository) ListByRequest(ctx context.Context, requestID string) ([]*entity.TaskEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.ListByRequest")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var tasks []*entity.TaskEntry
	if err := db.Where("request_id = ?", requestID).Order("created_at ASC").Find(&tasks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tasks by request: %w", err)
	}
	return tasks, nil
}

// List 分页查询任务
func (r *TaskRepository) List(ctx context.Context, filter *repository.TaskFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.TaskEntry], error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.TaskEntry{})

	// 应用过滤条件
	if filter != nil {
		if filter.RequestID != "" {
			query = query.Where("request_id = ?", filter.RequestID)
		}
		if filter.TaskType != "" {
			query = query.Where("task_type = ?", filter.TaskType)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	var tasks []*entity.TaskEntry
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&tasks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	return repository.NewPagedResult(tasks, total, pagination), nil
}

// DeleteBefore 删除过期的终态任务
func (r *TaskRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.TaskRepository.DeleteBefore")
	defer span.End()

	db := getDB(ctx, r.client.db)
	result := db.Where("status IN ? AND updated_at < ?", []entity.TaskStatus{
		entity.TaskCompleted, entity.TaskFailed, entity.TaskCancelled, entity.TaskAbandoned,
	}, before).Delete(&entity.TaskEntry{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to delete tasks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
