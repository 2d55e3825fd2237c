// Package registry 维护流会话与后台任务的持久化状态机，并负责孤儿回收与过期清理
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
	apperrors "legal-rag-api/pkg/errors"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/metrics"
)

// ErrInvalidTransition 不在状态机允许范围内的迁移
var ErrInvalidTransition = errors.New("invalid session transition")

// SessionEvent 会话生命周期事件
type SessionEvent struct {
	Type           string               `json:"type"`
	RequestID      string               `json:"request_id"`
	UserID         string               `json:"user_id"`
	ConversationID string               `json:"conversation_id,omitempty"`
	Status         entity.SessionStatus `json:"status"`
	Reason         entity.FailureReason `json:"reason,omitempty"`
	FailedStage    int                  `json:"failed_stage,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
}

// EventPublisher 生命周期事件发布
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, event *SessionEvent) error
}

// Trace 已完成会话的证据与推理步骤
type Trace struct {
	Session  *entity.StreamSession   `json:"session"`
	Evidence entity.EvidenceSet      `json:"evidence"`
	Steps    []*entity.ReasoningStep `json:"steps"`
}

// Registry 会话/任务注册表
type Registry struct {
	sessions repository.SessionRepository
	tasks    repository.TaskRepository
	traces   repository.TraceRepository
	tx       repository.Transactor
	events   EventPublisher
	cfg      config.RegistryConfig
	now      func() time.Time
}

// New 创建注册表；events 可为 nil
func New(
	sessions repository.SessionRepository,
	tasks repository.TaskRepository,
	traces repository.TraceRepository,
	tx repository.Transactor,
	events EventPublisher,
	cfg config.RegistryConfig,
) *Registry {
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = time.Hour
	}
	if cfg.TaskRetention <= 0 {
		cfg.TaskRetention = 24 * time.Hour
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Registry{
		sessions: sessions,
		tasks:    tasks,
		traces:   traces,
		tx:       tx,
		events:   events,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateSession 以 pending 状态登记会话
func (r *Registry) CreateSession(ctx context.Context, requestID string, q entity.Query, owner string) (*entity.StreamSession, error) {
	session := entity.NewStreamSession(requestID, q, owner)
	if err := r.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	metrics.SessionTransitions.WithLabelValues("", string(entity.SessionPending), "true").Inc()
	return session, nil
}

// GetSession 获取会话，不存在时返回 ErrSessionNotFound
func (r *Registry) GetSession(ctx context.Context, requestID string) (*entity.StreamSession, error) {
	session, err := r.sessions.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

// Transition 条件迁移：仅当当前状态为 from 时生效，返回是否由本次调用写入
func (r *Registry) Transition(ctx context.Context, requestID string, from, to entity.SessionStatus, reason entity.FailureReason) (bool, error) {
	return r.transition(ctx, repository.SessionTransition{
		RequestID: requestID,
		From:      from,
		To:        to,
		Reason:    reason,
	})
}

// FailAt 在指定推理阶段失败
func (r *Registry) FailAt(ctx context.Context, requestID string, from entity.SessionStatus, reason entity.FailureReason, stage int) (bool, error) {
	return r.transition(ctx, repository.SessionTransition{
		RequestID:   requestID,
		From:        from,
		To:          entity.SessionFailed,
		Reason:      reason,
		FailedStage: stage,
	})
}

func (r *Registry) transition(ctx context.Context, t repository.SessionTransition) (bool, error) {
	if !entity.CanTransition(t.From, t.To) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	applied, err := r.sessions.Transition(ctx, t)
	if err != nil {
		return false, err
	}
	metrics.SessionTransitions.WithLabelValues(string(t.From), string(t.To), fmt.Sprint(applied)).Inc()
	if !applied {
		logger.Debug(ctx, "session transition not applied",
			"request_id", t.RequestID,
			"from", t.From,
			"to", t.To,
		)
		return false, nil
	}
	if t.To.IsTerminal() {
		r.publish(ctx, t)
	}
	return true, nil
}

func (r *Registry) publish(ctx context.Context, t repository.SessionTransition) {
	if r.events == nil {
		return
	}
	event := &SessionEvent{
		Type:        eventType(t.To, t.Reason),
		RequestID:   t.RequestID,
		Status:      t.To,
		Reason:      t.Reason,
		FailedStage: t.FailedStage,
		OccurredAt:  r.now(),
	}
	if session, err := r.sessions.GetByID(ctx, t.RequestID); err == nil && session != nil {
		event.UserID = session.UserID
		event.ConversationID = session.ConversationID
	}
	if err := r.events.PublishSessionEvent(ctx, event); err != nil {
		logger.Warn(ctx, "failed to publish session event",
			"request_id", t.RequestID,
			"type", event.Type,
			"error", err,
		)
	}
}

func eventType(status entity.SessionStatus, reason entity.FailureReason) string {
	if reason == entity.ReasonOrphaned {
		return "session.orphaned"
	}
	return "session." + string(status)
}

// MarkPartialEvidence 标记部分检索通道失败
func (r *Registry) MarkPartialEvidence(ctx context.Context, requestID string) error {
	return r.sessions.MarkPartialEvidence(ctx, requestID)
}

// SetStrategy 记录分类得到的检索策略
func (r *Registry) SetStrategy(ctx context.Context, requestID string, strategy entity.RetrievalStrategy) error {
	return r.sessions.SetStrategy(ctx, requestID, strategy)
}

// RecordProduced 推进已生产序号，同时刷新 updated_at
func (r *Registry) RecordProduced(ctx context.Context, requestID string, seq int64) error {
	return r.sessions.RecordProduced(ctx, requestID, seq)
}

// AdvanceDelivered 推进已投递序号
func (r *Registry) AdvanceDelivered(ctx context.Context, requestID string, seq int64) error {
	return r.sessions.AdvanceDelivered(ctx, requestID, seq)
}

// Touch 刷新会话 updated_at
func (r *Registry) Touch(ctx context.Context, requestID string) error {
	return r.sessions.Touch(ctx, requestID)
}

// CountActiveByUser 用户的非终态会话数
func (r *Registry) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	return r.sessions.CountActiveByUser(ctx, userID)
}

// ListStale 超过 before 未更新的非终态会话
func (r *Registry) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.StreamSession, error) {
	return r.sessions.ListStale(ctx, before, limit)
}

// RegisterTask 登记后台任务
func (r *Registry) RegisterTask(ctx context.Context, requestID string, taskType entity.TaskType, owner string, metadata map[string]any) (*entity.TaskEntry, error) {
	task := entity.NewTaskEntry(uuid.NewString(), requestID, taskType, owner, metadata)
	if err := r.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// TransitionTask 条件迁移任务状态
func (r *Registry) TransitionTask(ctx context.Context, taskID string, from []entity.TaskStatus, to entity.TaskStatus, errMsg string) (bool, error) {
	return r.tasks.Transition(ctx, taskID, from, to, errMsg)
}

// HeartbeatTask 刷新任务心跳
func (r *Registry) HeartbeatTask(ctx context.Context, taskID string) error {
	return r.tasks.Heartbeat(ctx, taskID)
}

// ListTasks 分页查询任务
func (r *Registry) ListTasks(ctx context.Context, filter *repository.TaskFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.TaskEntry], error) {
	return r.tasks.List(ctx, filter, pagination)
}

// TasksForRequest 会话关联的全部任务
func (r *Registry) TasksForRequest(ctx context.Context, requestID string) ([]*entity.TaskEntry, error) {
	return r.tasks.ListByRequest(ctx, requestID)
}

// RecordEvidence 保存融合后的证据集合
func (r *Registry) RecordEvidence(ctx context.Context, requestID string, set entity.EvidenceSet) error {
	return r.traces.SaveEvidence(ctx, requestID, set)
}

// RecordStep 保存推理步骤
func (r *Registry) RecordStep(ctx context.Context, step *entity.ReasoningStep) error {
	return r.traces.SaveStep(ctx, step)
}

// GetTrace 获取已完成会话的证据与推理步骤
func (r *Registry) GetTrace(ctx context.Context, requestID string) (*Trace, error) {
	session, err := r.GetSession(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionCompleted {
		return nil, apperrors.ErrSessionNotCompleted.WithDetail(string(session.Status))
	}

	evidence, err := r.traces.ListEvidence(ctx, requestID)
	if err != nil {
		return nil, err
	}
	steps, err := r.traces.ListSteps(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return &Trace{Session: session, Evidence: evidence, Steps: steps}, nil
}

// CleanupResult 清理结果
type CleanupResult struct {
	Sessions int64
	Tasks    int64
}

// Cleanup 删除超过保留期的终态会话（连同轨迹数据）与终态任务
func (r *Registry) Cleanup(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	now := r.now()

	ids, err := r.sessions.ListTerminalBefore(ctx, now.Add(-r.cfg.SessionRetention), r.cfg.SweepBatch)
	if err != nil {
		return res, err
	}
	if len(ids) > 0 {
		err = r.tx.WithTransaction(ctx, func(ctx context.Context) error {
			if err := r.traces.DeleteByRequests(ctx, ids); err != nil {
				return err
			}
			n, err := r.sessions.Delete(ctx, ids)
			res.Sessions = n
			return err
		})
		if err != nil {
			return res, fmt.Errorf("failed to delete expired sessions: %w", err)
		}
	}

	res.Tasks, err = r.tasks.DeleteBefore(ctx, now.Add(-r.cfg.TaskRetention))
	if err != nil {
		return res, err
	}
	if res.Sessions > 0 || res.Tasks > 0 {
		logger.Info(ctx, "registry cleanup finished",
			"sessions_deleted", res.Sessions,
			"tasks_deleted", res.Tasks,
		)
	}
	return res, nil
}
