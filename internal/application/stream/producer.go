package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"legal-rag-api/internal/application/reasoning"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/metrics"
)

// errStopped 会话已被其他写者推进到终态
var errStopped = errors.New("producer stopped")

// producer 单个 request_id 的唯一写者
type producer struct {
	o              *Orchestrator
	requestID      string
	retrievalTask  string
	generationTask string
	query          entity.Query
	status         entity.SessionStatus

	// current 当前阶段的任务，心跳协程并发读取
	mu      sync.Mutex
	current string

	detachedSince  time.Time
	cancelObserved bool
}

func (p *producer) run(ctx context.Context) {
	reg := p.o.registry

	claimed, err := reg.Transition(ctx, p.requestID, entity.SessionPending, entity.SessionRetrieving, entity.ReasonNone)
	if err != nil || !claimed {
		// 已被取消或被其他写者认领
		if err != nil {
			logger.Warn(ctx, "failed to claim session", "error", err)
		}
		p.settleTasks(context.WithoutCancel(ctx), entity.TaskCancelled, "")
		return
	}
	p.status = entity.SessionRetrieving
	p.detachedSince = time.Now()
	p.startTask(ctx, p.retrievalTask)
	ctx = logger.WithContext(ctx, logger.TaskIDKey, p.retrievalTask)

	stop := make(chan struct{})
	var beats sync.WaitGroup
	beats.Add(1)
	go func() {
		defer beats.Done()
		p.keepAlive(ctx, stop)
	}()
	defer func() {
		close(stop)
		beats.Wait()
	}()

	if err := p.produce(ctx); err != nil {
		p.finish(ctx, err)
	}
}

// produce 主流程；返回 nil 表示已正常完成
func (p *producer) produce(ctx context.Context) error {
	o := p.o
	if p.cancelled(ctx) {
		return reasoning.ErrCancelled
	}

	strategy := o.classifier.Classify(ctx, p.query)
	if err := o.registry.SetStrategy(ctx, p.requestID, strategy); err != nil {
		logger.Warn(ctx, "failed to record strategy", "error", err)
	}

	evidence, report, err := o.retriever.Retrieve(ctx, p.query, strategy)
	if err != nil {
		return &failure{reason: entity.ReasonRetrievalUnavailable, err: err}
	}
	partial := report != nil && report.PartialEvidence
	if partial {
		if err := o.registry.MarkPartialEvidence(ctx, p.requestID); err != nil {
			logger.Warn(ctx, "failed to mark partial evidence", "error", err)
		}
	}
	if err := o.registry.RecordEvidence(ctx, p.requestID, evidence); err != nil {
		return &failure{reason: entity.ReasonRetrievalUnavailable, err: err}
	}
	if err := p.emit(ctx, entity.ChunkMeta, entity.MetaPayload{
		Strategy:        strategy,
		EvidenceCount:   len(evidence),
		PartialEvidence: partial,
	}); err != nil {
		return err
	}

	if err := p.advance(ctx, entity.SessionReasoning); err != nil {
		return err
	}
	p.completeTask(ctx, p.retrievalTask)
	p.startTask(ctx, p.generationTask)
	ctx = logger.WithContext(ctx, logger.TaskIDKey, p.generationTask)
	if p.cancelled(ctx) {
		return reasoning.ErrCancelled
	}

	result, err := o.reasoner.Run(ctx, reasoning.RunInput{
		RequestID:   p.requestID,
		Query:       p.query,
		Strategy:    strategy,
		Evidence:    evidence,
		Recorder:    p,
		CancelCheck: p.cancelled,
	})
	if err != nil {
		if errors.Is(err, reasoning.ErrCancelled) || p.cancelObserved {
			return reasoning.ErrCancelled
		}
		f := &failure{reason: entity.ReasonGenerationUnavailable, err: err}
		var stageErr *reasoning.StageError
		if errors.As(err, &stageErr) {
			f.stage = stageErr.Ordinal
		}
		return f
	}

	if err := p.advance(ctx, entity.SessionStreaming); err != nil {
		return err
	}
	for _, part := range splitAnswer(result.Answer, o.cfg.ChunkRunes) {
		if p.cancelled(ctx) {
			return reasoning.ErrCancelled
		}
		if err := p.emit(ctx, entity.ChunkAnswer, entity.AnswerPayload{Delta: part}); err != nil {
			return err
		}
	}
	if err := p.emit(ctx, entity.ChunkCitations, entity.CitationsPayload{Citations: result.Citations}); err != nil {
		return err
	}
	if p.cancelled(ctx) {
		return reasoning.ErrCancelled
	}

	if err := p.emit(ctx, entity.ChunkComplete, entity.FinalPayload{
		Status:         entity.SessionCompleted,
		ConversationID: p.query.ConversationID,
		Source:         string(strategy),
		Content:        result.Answer,
	}); err != nil {
		return err
	}
	if err := p.advance(ctx, entity.SessionCompleted); err != nil {
		return err
	}
	p.settleTasks(ctx, entity.TaskCompleted, "")
	logger.Info(ctx, "stream session completed",
		"strategy", strategy,
		"evidence", len(evidence),
		"low_confidence_issues", result.LowConfidenceIssues(),
	)
	return nil
}

// failure 对外只暴露 reason，原始错误只记录日志
type failure struct {
	reason entity.FailureReason
	stage  int
	err    error
}

func (f *failure) Error() string { return string(f.reason) + ": " + f.err.Error() }

func (f *failure) Unwrap() error { return f.err }

// finish 处理非正常结束：取消、失败或停止
func (p *producer) finish(ctx context.Context, err error) {
	// 实例关闭时保持现状，由回收器按孤儿处理
	if p.o.baseCtx.Err() != nil || errors.Is(err, errStopped) {
		logger.Info(ctx, "producer stopped", "status", p.status, "reason", err)
		return
	}
	ctx = logger.WithContext(ctx, logger.TaskIDKey, p.currentTask())
	wctx := context.WithoutCancel(ctx)
	reg := p.o.registry

	if p.cancelObserved || errors.Is(err, reasoning.ErrCancelled) {
		_ = p.emit(wctx, entity.ChunkCancelled, p.finalPayload(entity.SessionCancelled, entity.ReasonCancelled))
		if _, terr := reg.Transition(wctx, p.requestID, p.status, entity.SessionCancelled, entity.ReasonCancelled); terr != nil {
			logger.Warn(ctx, "failed to mark session cancelled", "error", terr)
		}
		p.settleTasks(wctx, entity.TaskCancelled, "")
		logger.Info(ctx, "stream session cancelled", "status", p.status)
		return
	}

	var f *failure
	if errors.As(err, &f) {
		logger.Error(ctx, "stream session failed", f.err,
			"reason", f.reason,
			"stage", f.stage,
			"status", p.status,
		)
		_ = p.emit(wctx, entity.ChunkError, p.finalPayload(entity.SessionFailed, f.reason))
		if _, terr := reg.FailAt(wctx, p.requestID, p.status, f.reason, f.stage); terr != nil {
			logger.Warn(ctx, "failed to mark session failed", "error", terr)
		}
		p.settleTasks(wctx, entity.TaskFailed, f.Error())
		return
	}

	// 缓冲区或注册表写入失败
	logger.Error(ctx, "stream session aborted", err, "status", p.status)
	_ = p.emit(wctx, entity.ChunkError, p.finalPayload(entity.SessionFailed, entity.ReasonGenerationUnavailable))
	if _, terr := reg.FailAt(wctx, p.requestID, p.status, entity.ReasonGenerationUnavailable, 0); terr != nil {
		logger.Warn(ctx, "failed to mark session failed", "error", terr)
	}
	p.settleTasks(wctx, entity.TaskFailed, err.Error())
}

func (p *producer) finalPayload(status entity.SessionStatus, reason entity.FailureReason) entity.FinalPayload {
	return entity.FinalPayload{
		Status:         status,
		Reason:         reason,
		ConversationID: p.query.ConversationID,
	}
}

// advance 条件迁移；未生效说明会话已被他人终结
func (p *producer) advance(ctx context.Context, to entity.SessionStatus) error {
	applied, err := p.o.registry.Transition(ctx, p.requestID, p.status, to, entity.ReasonNone)
	if err != nil {
		return err
	}
	if !applied {
		return errStopped
	}
	p.status = to
	return nil
}

// emit 追加分片并推进已生产序号
func (p *producer) emit(ctx context.Context, kind entity.ChunkKind, payload any) error {
	chunk, err := entity.NewChunk(p.requestID, kind, payload)
	if err != nil {
		return err
	}
	seq, err := p.o.buffer.Append(ctx, chunk)
	if err != nil {
		if errors.Is(err, ErrBufferClosed) {
			return errStopped
		}
		return err
	}
	metrics.StreamChunksTotal.WithLabelValues(string(kind)).Inc()
	if err := p.o.registry.RecordProduced(ctx, p.requestID, seq); err != nil {
		logger.Warn(ctx, "failed to record produced sequence", "seq", seq, "error", err)
	}
	return nil
}

// startTask 认领阶段任务并作为后续心跳对象
func (p *producer) startTask(ctx context.Context, taskID string) {
	if _, err := p.o.registry.TransitionTask(ctx, taskID, []entity.TaskStatus{entity.TaskPending}, entity.TaskRunning, ""); err != nil {
		logger.Warn(ctx, "failed to mark task running", "task_id", taskID, "error", err)
	}
	p.mu.Lock()
	p.current = taskID
	p.mu.Unlock()
}

func (p *producer) completeTask(ctx context.Context, taskID string) {
	if _, err := p.o.registry.TransitionTask(ctx, taskID, []entity.TaskStatus{entity.TaskRunning}, entity.TaskCompleted, ""); err != nil {
		logger.Warn(ctx, "failed to complete task", "task_id", taskID, "error", err)
	}
}

func (p *producer) currentTask() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// settleTasks 收尾：当前阶段任务迁移到 to，尚未开始的阶段任务取消
func (p *producer) settleTasks(ctx context.Context, to entity.TaskStatus, errMsg string) {
	current := p.currentTask()
	for _, taskID := range []string{p.retrievalTask, p.generationTask} {
		from, status, msg := entity.TaskPending, entity.TaskCancelled, ""
		if taskID == current {
			from, status, msg = entity.TaskRunning, to, errMsg
		}
		if _, err := p.o.registry.TransitionTask(ctx, taskID, []entity.TaskStatus{from}, status, msg); err != nil {
			logger.Warn(ctx, "failed to settle task", "task_id", taskID, "status", status, "error", err)
		}
	}
}

// keepAlive 按 heartbeat_every 刷新当前阶段任务的心跳，阶段内的长调用期间同样有效
func (p *producer) keepAlive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(p.o.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.beat(ctx)
		}
	}
}

func (p *producer) beat(ctx context.Context) {
	taskID := p.currentTask()
	if taskID == "" {
		return
	}
	if err := p.o.registry.HeartbeatTask(ctx, taskID); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "failed to heartbeat task", "task_id", taskID, "error", err)
	}
}

// cancelled 跨实例取消标记，或订阅者离线超过宽限期；只在阶段边界调用。
// ctx 仅在实例关闭时结束，此时不记为取消
func (p *producer) cancelled(ctx context.Context) bool {
	if p.cancelObserved || ctx.Err() != nil {
		return true
	}
	control := p.o.control
	if requested, err := control.IsCancelRequested(ctx, p.requestID); err != nil {
		logger.Warn(ctx, "failed to check cancel flag", "error", err)
	} else if requested {
		p.cancelObserved = true
		return true
	}

	attached, err := control.IsAttached(ctx, p.requestID)
	if err != nil {
		logger.Warn(ctx, "failed to check subscriber presence", "error", err)
		return false
	}
	if attached {
		p.detachedSince = time.Time{}
		return false
	}
	if p.detachedSince.IsZero() {
		p.detachedSince = time.Now()
		return false
	}
	if time.Since(p.detachedSince) > p.o.cfg.DisconnectGrace {
		logger.Info(ctx, "no subscriber within disconnect grace, cancelling")
		p.cancelObserved = true
		return true
	}
	return false
}

// StageEvent 阶段进度写为 stage 分片
func (p *producer) StageEvent(ctx context.Context, ordinal int, stage entity.StageName, status reasoning.StageStatus) {
	if err := p.emit(ctx, entity.ChunkStage, entity.StagePayload{
		Ordinal:   ordinal,
		StageName: stage,
		Status:    string(status),
	}); err != nil && ctx.Err() == nil {
		logger.Warn(ctx, "failed to emit stage chunk", "ordinal", ordinal, "error", err)
	}
}

// RecordStep 持久化推理步骤
func (p *producer) RecordStep(ctx context.Context, step *entity.ReasoningStep) error {
	p.beat(ctx)
	return p.o.registry.RecordStep(ctx, step)
}

var _ reasoning.Recorder = (*producer)(nil)
