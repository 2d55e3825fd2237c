package registry

import (
	"context"
	"time"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/metrics"
)

// ChunkAppender 写入终止分片
type ChunkAppender interface {
	Append(ctx context.Context, chunk entity.StreamChunk) (int64, error)
}

// Reaper 回收无人推进的会话：超过 orphan_timeout 未更新且没有新鲜心跳的运行中任务
type Reaper struct {
	registry   *Registry
	chunks     ChunkAppender
	cfg        config.RegistryConfig
	instanceID string
	now        func() time.Time
}

// NewReaper 创建回收器；instanceID 记为清理任务的 owner
func NewReaper(registry *Registry, chunks ChunkAppender, cfg config.RegistryConfig, instanceID string) *Reaper {
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = 30 * time.Second
	}
	if cfg.OrphanTimeout <= 0 {
		cfg.OrphanTimeout = 2 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 100
	}
	return &Reaper{
		registry:   registry,
		chunks:     chunks,
		cfg:        cfg,
		instanceID: instanceID,
		now:        time.Now,
	}
}

// Run 周期执行回收与过期清理，直到 ctx 结束
func (r *Reaper) Run(ctx context.Context) {
	logger.Info(ctx, "reaper started",
		"interval", r.cfg.ReaperInterval,
		"orphan_timeout", r.cfg.OrphanTimeout,
	)
	sweep := time.NewTicker(r.cfg.ReaperInterval)
	defer sweep.Stop()
	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "reaper stopped")
			return
		case <-sweep.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "reaper sweep failed", err)
			}
		case <-cleanup.C:
			if _, err := r.registry.Cleanup(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "registry cleanup failed", err)
			}
		}
	}
}

// Sweep 执行一次回收，返回标记为 orphaned 的会话数
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.cfg.OrphanTimeout)
	stale, err := r.registry.ListStale(ctx, cutoff, r.cfg.SweepBatch)
	if err != nil {
		metrics.ReaperSweeps.WithLabelValues("error").Inc()
		return 0, err
	}

	orphaned := 0
	for _, session := range stale {
		ok, err := r.reap(ctx, session, cutoff)
		if err != nil {
			logger.Warn(ctx, "failed to reap session",
				"request_id", session.RequestID,
				"error", err,
			)
			continue
		}
		if ok {
			orphaned++
		}
	}
	metrics.ReaperSweeps.WithLabelValues("ok").Inc()
	if orphaned > 0 {
		logger.Info(ctx, "reaper sweep finished",
			"stale", len(stale),
			"orphaned", orphaned,
		)
	}
	return orphaned, nil
}

func (r *Reaper) reap(ctx context.Context, session *entity.StreamSession, cutoff time.Time) (bool, error) {
	tasks, err := r.registry.TasksForRequest(ctx, session.RequestID)
	if err != nil {
		return false, err
	}
	for _, task := range tasks {
		// 运行中且心跳新鲜：其他实例仍在推进
		if task.Status == entity.TaskRunning && task.UpdatedAt.After(cutoff) {
			return false, nil
		}
	}

	applied, err := r.registry.Transition(ctx, session.RequestID, session.Status, entity.SessionFailed, entity.ReasonOrphaned)
	if err != nil || !applied {
		return false, err
	}
	metrics.OrphanedSessions.Inc()

	cleanup := r.startCleanup(ctx, session)
	for _, task := range tasks {
		if task.Status.IsTerminal() {
			continue
		}
		if _, err := r.registry.TransitionTask(ctx, task.TaskID,
			[]entity.TaskStatus{entity.TaskPending, entity.TaskRunning},
			entity.TaskAbandoned, "orphaned"); err != nil {
			logger.Warn(ctx, "failed to abandon task", "task_id", task.TaskID, "error", err)
		}
	}
	r.appendFinal(ctx, session.RequestID)
	if cleanup != "" {
		if _, err := r.registry.TransitionTask(ctx, cleanup,
			[]entity.TaskStatus{entity.TaskRunning}, entity.TaskCompleted, ""); err != nil {
			logger.Warn(ctx, "failed to complete cleanup task", "task_id", cleanup, "error", err)
		}
	}

	logger.Warn(ctx, "session orphaned",
		"request_id", session.RequestID,
		"status", session.Status,
		"updated_at", session.UpdatedAt,
	)
	return true, nil
}

// startCleanup 为本次回收登记 cleanup 任务；登记失败不影响回收
func (r *Reaper) startCleanup(ctx context.Context, session *entity.StreamSession) string {
	task, err := r.registry.RegisterTask(ctx, session.RequestID, entity.TaskTypeCleanup, r.instanceID, map[string]any{
		"reason":      string(entity.ReasonOrphaned),
		"from_status": string(session.Status),
	})
	if err != nil {
		logger.Warn(ctx, "failed to register cleanup task", "request_id", session.RequestID, "error", err)
		return ""
	}
	if _, err := r.registry.TransitionTask(ctx, task.TaskID,
		[]entity.TaskStatus{entity.TaskPending}, entity.TaskRunning, ""); err != nil {
		logger.Warn(ctx, "failed to start cleanup task", "task_id", task.TaskID, "error", err)
	}
	return task.TaskID
}

// appendFinal 写入 orphaned 终止分片；生产者已写入终止分片时追加会被拒绝
func (r *Reaper) appendFinal(ctx context.Context, requestID string) {
	chunk, err := entity.NewChunk(requestID, entity.ChunkError, entity.FinalPayload{
		Status: entity.SessionFailed,
		Reason: entity.ReasonOrphaned,
	})
	if err != nil {
		return
	}
	seq, err := r.chunks.Append(ctx, chunk)
	if err != nil {
		logger.Debug(ctx, "final chunk not appended", "request_id", requestID, "error", err)
		return
	}
	if err := r.registry.RecordProduced(ctx, requestID, seq); err != nil {
		logger.Warn(ctx, "failed to record produced sequence",
			"request_id", requestID,
			"seq", seq,
			"error", err,
		)
	}
}
