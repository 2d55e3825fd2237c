// Package repotest 提供仓储接口的内存实现，用于单元测试
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
)

// Sessions 内存会话仓储，条件迁移在互斥锁内完成比较与写入
type Sessions struct {
	mu    sync.Mutex
	items map[string]*entity.StreamSession
}

// NewSessions 创建内存会话仓储
func NewSessions() *Sessions {
	return &Sessions{items: make(map[string]*entity.StreamSession)}
}

var _ repository.SessionRepository = (*Sessions)(nil)

// Put 直接写入会话（覆盖）
func (s *Sessions) Put(session *entity.StreamSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.items[session.RequestID] = &cp
}

// SetUpdatedAt 修改 updated_at，用于构造过期会话
func (s *Sessions) SetUpdatedAt(requestID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[requestID]; ok {
		it.UpdatedAt = at
	}
}

func (s *Sessions) Create(_ context.Context, session *entity.StreamSession) error {
	s.Put(session)
	return nil
}

func (s *Sessions) GetByID(_ context.Context, requestID string) (*entity.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[requestID]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (s *Sessions) Transition(_ context.Context, t repository.SessionTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[t.RequestID]
	if !ok || it.Status != t.From {
		return false, nil
	}
	it.Status = t.To
	if t.Reason != entity.ReasonNone {
		it.FailureReason = t.Reason
	}
	if t.FailedStage > 0 {
		it.FailedStage = t.FailedStage
	}
	it.UpdatedAt = time.Now()
	return true, nil
}

func (s *Sessions) mutate(requestID string, fn func(*entity.StreamSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[requestID]; ok {
		fn(it)
	}
}

func (s *Sessions) MarkPartialEvidence(_ context.Context, requestID string) error {
	s.mutate(requestID, func(it *entity.StreamSession) {
		it.PartialEvidence = true
		it.UpdatedAt = time.Now()
	})
	return nil
}

func (s *Sessions) SetStrategy(_ context.Context, requestID string, strategy entity.RetrievalStrategy) error {
	s.mutate(requestID, func(it *entity.StreamSession) {
		it.Strategy = strategy
		it.UpdatedAt = time.Now()
	})
	return nil
}

func (s *Sessions) RecordProduced(_ context.Context, requestID string, seq int64) error {
	s.mutate(requestID, func(it *entity.StreamSession) {
		if seq > it.LastSequenceNo {
			it.LastSequenceNo = seq
			it.UpdatedAt = time.Now()
		}
	})
	return nil
}

func (s *Sessions) AdvanceDelivered(_ context.Context, requestID string, seq int64) error {
	s.mutate(requestID, func(it *entity.StreamSession) {
		if seq > it.DeliveredSeqNo {
			it.DeliveredSeqNo = seq
		}
	})
	return nil
}

func (s *Sessions) Touch(_ context.Context, requestID string) error {
	s.mutate(requestID, func(it *entity.StreamSession) { it.UpdatedAt = time.Now() })
	return nil
}

func (s *Sessions) CountActiveByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, it := range s.items {
		if it.UserID == userID && !it.Status.IsTerminal() {
			n++
		}
	}
	return n, nil
}

func (s *Sessions) sorted(match func(*entity.StreamSession) bool, limit int) []*entity.StreamSession {
	var out []*entity.StreamSession
	for _, it := range s.items {
		if match(it) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Sessions) ListStale(_ context.Context, before time.Time, limit int) ([]*entity.StreamSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(it *entity.StreamSession) bool {
		return !it.Status.IsTerminal() && it.UpdatedAt.Before(before)
	}, limit), nil
}

func (s *Sessions) ListTerminalBefore(_ context.Context, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.sorted(func(it *entity.StreamSession) bool {
		return it.Status.IsTerminal() && it.UpdatedAt.Before(before)
	}, limit)
	ids := make([]string, len(found))
	for i, it := range found {
		ids[i] = it.RequestID
	}
	return ids, nil
}

func (s *Sessions) Delete(_ context.Context, requestIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range requestIDs {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

// Tasks 内存任务仓储
type Tasks struct {
	mu    sync.Mutex
	items map[string]*entity.TaskEntry
}

// NewTasks 创建内存任务仓储
func NewTasks() *Tasks {
	return &Tasks{items: make(map[string]*entity.TaskEntry)}
}

var _ repository.TaskRepository = (*Tasks)(nil)

// SetUpdatedAt 修改心跳时间
func (s *Tasks) SetUpdatedAt(taskID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[taskID]; ok {
		it.UpdatedAt = at
	}
}

func (s *Tasks) Create(_ context.Context, task *entity.TaskEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *task
	s.items[task.TaskID] = &cp
	return nil
}

func (s *Tasks) GetByID(_ context.Context, taskID string) (*entity.TaskEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[taskID]
	if !ok {
		return nil, nil
	}
	cp := *it
	return &cp, nil
}

func (s *Tasks) Transition(_ context.Context, taskID string, from []entity.TaskStatus, to entity.TaskStatus, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[taskID]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if it.Status == f {
			it.Status = to
			if errMsg != "" {
				it.ErrorMessage = errMsg
			}
			it.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (s *Tasks) Heartbeat(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[taskID]; ok {
		it.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Tasks) ListByRequest(_ context.Context, requestID string) ([]*entity.TaskEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.TaskEntry
	for _, it := range s.items {
		if it.RequestID == requestID {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Tasks) List(_ context.Context, filter *repository.TaskFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.TaskEntry], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*entity.TaskEntry
	for _, it := range s.items {
		if filter != nil {
			if filter.RequestID != "" && it.RequestID != filter.RequestID {
				continue
			}
			if filter.TaskType != "" && it.TaskType != filter.TaskType {
				continue
			}
			if filter.Status != "" && it.Status != filter.Status {
				continue
			}
		}
		cp := *it
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := pagination.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + pagination.Limit()
	if end > len(all) {
		end = len(all)
	}
	return repository.NewPagedResult(all[start:end], total, pagination), nil
}

func (s *Tasks) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, it := range s.items {
		if it.Status.IsTerminal() && it.UpdatedAt.Before(before) {
			delete(s.items, id)
			n++
		}
	}
	return n, nil
}

// Traces 内存证据与推理步骤仓储
type Traces struct {
	mu       sync.Mutex
	evidence map[string]entity.EvidenceSet
	steps    map[string]map[int]*entity.ReasoningStep
}

// NewTraces 创建内存轨迹仓储
func NewTraces() *Traces {
	return &Traces{
		evidence: make(map[string]entity.EvidenceSet),
		steps:    make(map[string]map[int]*entity.ReasoningStep),
	}
}

var _ repository.TraceRepository = (*Traces)(nil)

func (s *Traces) SaveEvidence(_ context.Context, requestID string, set entity.EvidenceSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make(entity.EvidenceSet, len(set))
	for i, it := range set {
		it.RequestID = requestID
		rows[i] = it
	}
	s.evidence[requestID] = rows
	return nil
}

func (s *Traces) ListEvidence(_ context.Context, requestID string) (entity.EvidenceSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := append(entity.EvidenceSet(nil), s.evidence[requestID]...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Rank < rows[j].Rank })
	return rows, nil
}

func (s *Traces) SaveStep(_ context.Context, step *entity.ReasoningStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byOrdinal, ok := s.steps[step.RequestID]
	if !ok {
		byOrdinal = make(map[int]*entity.ReasoningStep)
		s.steps[step.RequestID] = byOrdinal
	}
	cp := *step
	byOrdinal[step.Ordinal] = &cp
	return nil
}

func (s *Traces) ListSteps(_ context.Context, requestID string) ([]*entity.ReasoningStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.ReasoningStep
	for _, st := range s.steps[requestID] {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *Traces) DeleteByRequests(_ context.Context, requestIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range requestIDs {
		delete(s.evidence, id)
		delete(s.steps, id)
	}
	return nil
}

// Tx 直接执行回调的事务实现
type Tx struct{}

var _ repository.Transactor = Tx{}

func (Tx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
