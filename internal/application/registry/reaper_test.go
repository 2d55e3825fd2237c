package registry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository/repotest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memChunks struct {
	mu     sync.Mutex
	seq    int64
	chunks []entity.StreamChunk
}

func (m *memChunks) Append(_ context.Context, chunk entity.StreamChunk) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	chunk.SequenceNo = m.seq
	m.chunks = append(m.chunks, chunk)
	return m.seq, nil
}

func (m *memChunks) snapshot() []entity.StreamChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.StreamChunk(nil), m.chunks...)
}

type reaperFixture struct {
	sessions *repotest.Sessions
	tasks    *repotest.Tasks
	events   *memEvents
	chunks   *memChunks
	reg      *Registry
	reaper   *Reaper
}

func newReaperFixture(interval time.Duration) *reaperFixture {
	f := &reaperFixture{
		sessions: repotest.NewSessions(),
		tasks:    repotest.NewTasks(),
		events:   &memEvents{},
		chunks:   &memChunks{},
	}
	cfg := config.RegistryConfig{
		ReaperInterval:  interval,
		OrphanTimeout:   time.Minute,
		CleanupInterval: time.Hour,
	}
	f.reg = New(f.sessions, f.tasks, repotest.NewTraces(), repotest.Tx{}, f.events, cfg)
	f.reaper = NewReaper(f.reg, f.chunks, cfg, "reaper-test")
	return f
}

// staleSession 写入一个 updated_at 已过期的会话及其运行中任务
func (f *reaperFixture) staleSession(t *testing.T, id string, status entity.SessionStatus, taskAge time.Duration) string {
	t.Helper()
	ctx := context.Background()
	f.sessions.Put(&entity.StreamSession{
		RequestID: id,
		UserID:    "u1",
		Status:    status,
		UpdatedAt: time.Now().Add(-5 * time.Minute),
	})
	task, err := f.reg.RegisterTask(ctx, id, entity.TaskTypeRetrieval, "instance-gone", nil)
	require.NoError(t, err)
	_, err = f.reg.TransitionTask(ctx, task.TaskID, []entity.TaskStatus{entity.TaskPending}, entity.TaskRunning, "")
	require.NoError(t, err)
	f.tasks.SetUpdatedAt(task.TaskID, time.Now().Add(-taskAge))
	return task.TaskID
}

func TestSweepOrphansStaleSession(t *testing.T) {
	f := newReaperFixture(time.Hour)
	ctx := context.Background()
	taskID := f.staleSession(t, "req-1", entity.SessionReasoning, 5*time.Minute)

	n, err := f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	session, err := f.reg.GetSession(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.SessionFailed, session.Status)
	assert.Equal(t, entity.ReasonOrphaned, session.FailureReason)

	task, err := f.tasks.GetByID(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskAbandoned, task.Status)

	// 回收本身登记为 cleanup 任务
	tasks, err := f.reg.TasksForRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	var cleanup *entity.TaskEntry
	for _, entry := range tasks {
		if entry.TaskType == entity.TaskTypeCleanup {
			cleanup = entry
		}
	}
	require.NotNil(t, cleanup)
	assert.Equal(t, entity.TaskCompleted, cleanup.Status)
	assert.Equal(t, "reaper-test", cleanup.OwnerInstance)
	assert.JSONEq(t, `{"reason":"orphaned","from_status":"reasoning"}`, string(cleanup.Metadata))

	chunks := f.chunks.snapshot()
	require.Len(t, chunks, 1)
	assert.Equal(t, entity.ChunkError, chunks[0].Kind)
	assert.True(t, chunks[0].IsFinal)
	var payload entity.FinalPayload
	require.NoError(t, json.Unmarshal(chunks[0].Payload, &payload))
	assert.Equal(t, entity.ReasonOrphaned, payload.Reason)
	assert.Equal(t, int64(1), session.LastSequenceNo)

	assert.Equal(t, []string{"session.orphaned"}, f.events.types())

	// 第二次回收不再处理终态会话
	n, err = f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepSkipsSessionWithFreshHeartbeat(t *testing.T) {
	f := newReaperFixture(time.Hour)
	ctx := context.Background()
	f.staleSession(t, "req-1", entity.SessionStreaming, time.Second)

	n, err := f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	session, err := f.reg.GetSession(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStreaming, session.Status)
	assert.Empty(t, f.chunks.snapshot())
}

func TestSweepCrossChecksEveryPhaseTask(t *testing.T) {
	f := newReaperFixture(time.Hour)
	ctx := context.Background()
	// 检索任务早已完成，生成任务仍在心跳
	retrievalID := f.staleSession(t, "req-1", entity.SessionReasoning, 10*time.Minute)
	_, err := f.reg.TransitionTask(ctx, retrievalID, []entity.TaskStatus{entity.TaskRunning}, entity.TaskCompleted, "")
	require.NoError(t, err)
	f.tasks.SetUpdatedAt(retrievalID, time.Now().Add(-10*time.Minute))
	generation, err := f.reg.RegisterTask(ctx, "req-1", entity.TaskTypeGeneration, "instance-b", nil)
	require.NoError(t, err)
	_, err = f.reg.TransitionTask(ctx, generation.TaskID, []entity.TaskStatus{entity.TaskPending}, entity.TaskRunning, "")
	require.NoError(t, err)

	n, err := f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 生成任务心跳过期后会话被回收，已完成的检索任务保持不变
	f.tasks.SetUpdatedAt(generation.TaskID, time.Now().Add(-5*time.Minute))
	n, err = f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.tasks.GetByID(ctx, retrievalID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskCompleted, got.Status)
	got, err = f.tasks.GetByID(ctx, generation.TaskID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskAbandoned, got.Status)
}

func TestSweepIgnoresFreshAndTerminalSessions(t *testing.T) {
	f := newReaperFixture(time.Hour)
	ctx := context.Background()
	f.sessions.Put(&entity.StreamSession{RequestID: "fresh", Status: entity.SessionRetrieving, UpdatedAt: time.Now()})
	f.sessions.Put(&entity.StreamSession{RequestID: "done", Status: entity.SessionCompleted, UpdatedAt: time.Now().Add(-time.Hour)})

	n, err := f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.events.types())
}

func TestSweepPendingSessionWithoutTasks(t *testing.T) {
	f := newReaperFixture(time.Hour)
	ctx := context.Background()
	f.sessions.Put(&entity.StreamSession{RequestID: "req-1", Status: entity.SessionPending, UpdatedAt: time.Now().Add(-time.Hour)})

	n, err := f.reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newReaperFixture(10 * time.Millisecond)
	f.staleSession(t, "req-1", entity.SessionRetrieving, 5*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.reaper.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		session, err := f.reg.GetSession(context.Background(), "req-1")
		return err == nil && session.Status == entity.SessionFailed
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
