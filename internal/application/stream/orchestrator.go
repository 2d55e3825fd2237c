package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"legal-rag-api/internal/application/registry"
	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
	apperrors "legal-rag-api/pkg/errors"
	"legal-rag-api/pkg/logger"
)

var (
	// ErrUserCapacityExceeded 用户的活跃流数量达到上限
	ErrUserCapacityExceeded = fmt.Errorf("%w: per user", ErrCapacityExceeded)
	// ErrClosed 编排器已关闭
	ErrClosed = errors.New("stream orchestrator closed")
)

// StartInput 发起流式问答
type StartInput struct {
	UserID         string
	ConversationID string
	Question       string
	Context        []entity.ContextTurn
}

// StartOutput 发起结果，生产者已在后台运行
type StartOutput struct {
	RequestID   string
	Status      entity.SessionStatus
	StreamToken string
	ExpiresAt   time.Time
}

// Orchestrator 流式编排器
type Orchestrator struct {
	registry   *registry.Registry
	buffer     ChunkBuffer
	control    Control
	classifier Classifier
	retriever  Retriever
	reasoner   Reasoner
	tokens     TokenIssuer
	admission  *Admission

	cfg        config.StreamConfig
	tokenCfg   config.StreamTokenConfig
	instanceID string

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator 创建编排器；tokens 为 nil 时不签发流令牌
func NewOrchestrator(
	reg *registry.Registry,
	buffer ChunkBuffer,
	control Control,
	classifier Classifier,
	retriever Retriever,
	reasoner Reasoner,
	tokens TokenIssuer,
	cfg *config.Config,
) *Orchestrator {
	streamCfg := cfg.Stream
	if streamCfg.ChunkRunes <= 0 {
		streamCfg.ChunkRunes = 160
	}
	if streamCfg.DisconnectGrace <= 0 {
		streamCfg.DisconnectGrace = 30 * time.Second
	}
	if streamCfg.PollBlock <= 0 {
		streamCfg.PollBlock = 5 * time.Second
	}
	if streamCfg.HeartbeatEvery <= 0 {
		streamCfg.HeartbeatEvery = 5 * time.Second
	}
	if streamCfg.MaxActivePerUser <= 0 {
		streamCfg.MaxActivePerUser = 3
	}
	tokenCfg := cfg.Security.StreamToken
	if tokenCfg.TTL <= 0 {
		tokenCfg.TTL = time.Minute
	}

	base, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		registry:   reg,
		buffer:     buffer,
		control:    control,
		classifier: classifier,
		retriever:  retriever,
		reasoner:   reasoner,
		tokens:     tokens,
		admission:  NewAdmission(streamCfg),
		cfg:        streamCfg,
		tokenCfg:   tokenCfg,
		instanceID: cfg.App.InstanceID,
		baseCtx:    base,
		stop:       stop,
	}
}

// Admission 返回准入控制，用于就绪检查与指标
func (o *Orchestrator) Admission() *Admission {
	return o.admission
}

// Start 登记会话并启动生产者，立即返回
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*StartOutput, error) {
	if o.baseCtx.Err() != nil {
		return nil, ErrClosed
	}
	q := entity.NewQuery(in.UserID, in.ConversationID, in.Question, in.Context)
	if q.UserID == "" || q.RawText == "" {
		return nil, ErrInvalidInput
	}

	active, err := o.registry.CountActiveByUser(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	if active >= int64(o.cfg.MaxActivePerUser) {
		logger.Warn(ctx, "per-user stream cap reached", "user_id", q.UserID, "active", active)
		return nil, ErrUserCapacityExceeded
	}

	release, err := o.admission.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	ctx = logger.WithRequest(ctx, requestID, q.UserID)
	session, err := o.registry.CreateSession(ctx, requestID, q, o.instanceID)
	if err != nil {
		release()
		return nil, err
	}
	tasks, err := o.registerTasks(ctx, requestID, q)
	if err != nil {
		release()
		_, _ = o.registry.Transition(ctx, requestID, entity.SessionPending, entity.SessionFailed, entity.ReasonGenerationUnavailable)
		return nil, err
	}

	out := &StartOutput{RequestID: requestID, Status: session.Status}
	if o.tokens != nil && o.tokenCfg.Enabled {
		token, expiresAt, err := o.tokens.GenerateStreamToken(requestID, q.UserID, o.tokenCfg.TTL)
		if err != nil {
			release()
			if _, terr := o.registry.Transition(ctx, requestID, entity.SessionPending, entity.SessionFailed, entity.ReasonGenerationUnavailable); terr == nil {
				o.closeTasks(ctx, requestID, entity.TaskFailed)
			}
			return nil, fmt.Errorf("failed to issue stream token: %w", err)
		}
		out.StreamToken = token
		out.ExpiresAt = expiresAt
	}

	pctx := logger.WithRequest(o.baseCtx, requestID, q.UserID)
	pctx = logger.WithContext(pctx, logger.ConversationIDKey, q.ConversationID)
	p := &producer{
		o:              o,
		requestID:      requestID,
		retrievalTask:  tasks[0].TaskID,
		generationTask: tasks[1].TaskID,
		query:          q,
		status:         entity.SessionPending,
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer release()
		p.run(pctx)
	}()

	logger.Info(ctx, "stream session started",
		"retrieval_task_id", p.retrievalTask,
		"generation_task_id", p.generationTask,
	)
	return out, nil
}

// registerTasks 为检索与生成两个阶段各登记一个任务，生产者认领后按阶段推进
func (o *Orchestrator) registerTasks(ctx context.Context, requestID string, q entity.Query) ([]*entity.TaskEntry, error) {
	metadata := map[string]any{"conversation_id": q.ConversationID}
	var tasks []*entity.TaskEntry
	for _, taskType := range []entity.TaskType{entity.TaskTypeRetrieval, entity.TaskTypeGeneration} {
		task, err := o.registry.RegisterTask(ctx, requestID, taskType, o.instanceID, metadata)
		if err != nil {
			for _, t := range tasks {
				_, _ = o.registry.TransitionTask(ctx, t.TaskID, []entity.TaskStatus{entity.TaskPending}, entity.TaskCancelled, "")
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Cancel 请求取消；pending 且无生产者时直接迁移到 cancelled
func (o *Orchestrator) Cancel(ctx context.Context, requestID, userID string) (*entity.StreamSession, error) {
	session, err := o.ownedSession(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return session, nil
	}

	// 只设置标记，生产者在阶段边界检查，进行中的调用不会被打断
	ctx = logger.WithRequest(ctx, requestID, userID)
	if err := o.control.RequestCancel(ctx, requestID); err != nil {
		return nil, err
	}

	if session.Status == entity.SessionPending {
		applied, err := o.registry.Transition(ctx, requestID, entity.SessionPending, entity.SessionCancelled, entity.ReasonCancelled)
		if err != nil {
			return nil, err
		}
		if applied {
			o.finalizePending(ctx, requestID)
			session.Status = entity.SessionCancelled
		}
	}
	logger.Info(ctx, "stream cancel requested", "status", session.Status)
	return session, nil
}

func (o *Orchestrator) finalizePending(ctx context.Context, requestID string) {
	chunk, err := entity.NewChunk(requestID, entity.ChunkCancelled, entity.FinalPayload{
		Status: entity.SessionCancelled,
		Reason: entity.ReasonCancelled,
	})
	if err == nil {
		if seq, err := o.buffer.Append(ctx, chunk); err != nil {
			logger.Warn(ctx, "failed to append cancelled chunk", "error", err)
		} else if err := o.registry.RecordProduced(ctx, requestID, seq); err != nil {
			logger.Warn(ctx, "failed to record produced sequence", "seq", seq, "error", err)
		}
	}
	o.closeTasks(ctx, requestID, entity.TaskCancelled)
}

// closeTasks 将会话下未结束的任务迁移到 to
func (o *Orchestrator) closeTasks(ctx context.Context, requestID string, to entity.TaskStatus) {
	tasks, err := o.registry.TasksForRequest(ctx, requestID)
	if err != nil {
		logger.Warn(ctx, "failed to list tasks", "error", err)
		return
	}
	for _, t := range tasks {
		if t.Status.IsTerminal() {
			continue
		}
		if _, err := o.registry.TransitionTask(ctx, t.TaskID,
			[]entity.TaskStatus{entity.TaskPending, entity.TaskRunning}, to, ""); err != nil {
			logger.Warn(ctx, "failed to close task", "task_id", t.TaskID, "error", err)
		}
	}
}

// Session 获取调用者自己的会话
func (o *Orchestrator) Session(ctx context.Context, requestID, userID string) (*entity.StreamSession, error) {
	return o.ownedSession(ctx, requestID, userID)
}

// Trace 获取调用者自己已完成会话的证据与推理步骤
func (o *Orchestrator) Trace(ctx context.Context, requestID, userID string) (*registry.Trace, error) {
	if _, err := o.ownedSession(ctx, requestID, userID); err != nil {
		return nil, err
	}
	return o.registry.GetTrace(ctx, requestID)
}

// Tasks 分页查询调用者会话下的任务
func (o *Orchestrator) Tasks(ctx context.Context, requestID, userID string, status entity.TaskStatus, pagination repository.Pagination) (*repository.PagedResult[*entity.TaskEntry], error) {
	if _, err := o.ownedSession(ctx, requestID, userID); err != nil {
		return nil, err
	}
	return o.registry.ListTasks(ctx, &repository.TaskFilter{RequestID: requestID, Status: status}, pagination)
}

func (o *Orchestrator) ownedSession(ctx context.Context, requestID, userID string) (*entity.StreamSession, error) {
	session, err := o.registry.GetSession(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// 他人的会话按不存在处理
	if userID != "" && session.UserID != userID {
		return nil, apperrors.ErrSessionNotFound
	}
	return session, nil
}

// Shutdown 停止全部本地生产者；未完成的会话留给回收器处理
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
