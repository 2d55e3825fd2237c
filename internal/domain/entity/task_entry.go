package entity

import (
	"encoding/json"
	"time"
)

// TaskType 后台任务类型：每个会话登记检索与生成两个阶段任务，回收器为孤儿会话登记清理任务
type TaskType string

const (
	TaskTypeRetrieval  TaskType = "retrieval"
	TaskTypeGeneration TaskType = "generation"
	TaskTypeCleanup    TaskType = "cleanup"
)

// TaskStatus 后台任务状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskAbandoned TaskStatus = "abandoned"
)

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskAbandoned:
		return true
	}
	return false
}

// TaskEntry 任务注册表条目，updated_at 兼作心跳
type TaskEntry struct {
	TaskID        string          `json:"task_id" gorm:"type:varchar(64);primaryKey"`
	RequestID     string          `json:"request_id" gorm:"type:varchar(64);index"`
	TaskType      TaskType        `json:"task_type" gorm:"type:varchar(32);not null"`
	Status        TaskStatus      `json:"status" gorm:"type:varchar(16);not null;index:idx_tasks_status_updated,priority:1"`
	OwnerInstance string          `json:"owner_instance,omitempty" gorm:"type:varchar(128)"`
	Metadata      json.RawMessage `json:"metadata,omitempty" gorm:"type:jsonb"`
	ErrorMessage  string          `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"index:idx_tasks_status_updated,priority:2"`
}

// TableName 指定表名
func (TaskEntry) TableName() string {
	return "task_registry"
}

// NewTaskEntry 创建任务条目
func NewTaskEntry(taskID, requestID string, taskType TaskType, owner string, metadata map[string]any) *TaskEntry {
	now := time.Now()
	var raw json.RawMessage
	if len(metadata) > 0 {
		raw, _ = json.Marshal(metadata)
	}
	return &TaskEntry{
		TaskID:        taskID,
		RequestID:     requestID,
		TaskType:      taskType,
		Status:        TaskPending,
		OwnerInstance: owner,
		Metadata:      raw,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
