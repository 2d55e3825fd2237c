package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/application/registry"
	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
	apperrors "legal-rag-api/pkg/errors"
)

type fakeChat struct {
	startErr  error
	started   stream.StartInput
	session   *entity.StreamSession
	traceErr  error
	chunks    []entity.StreamChunk
	cursorArg [2]string
	cursorErr error
	acked     []int64
	page      repository.Pagination
}

func (f *fakeChat) Start(_ context.Context, in stream.StartInput) (*stream.StartOutput, error) {
	f.started = in
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &stream.StartOutput{
		RequestID:   "req-1",
		Status:      entity.SessionPending,
		StreamToken: "a.b.c",
		ExpiresAt:   time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
	}, nil
}

func (f *fakeChat) Cancel(_ context.Context, requestID, userID string) (*entity.StreamSession, error) {
	if f.session == nil || f.session.UserID != userID {
		return nil, apperrors.ErrSessionNotFound
	}
	return f.session, nil
}

func (f *fakeChat) Session(_ context.Context, requestID, userID string) (*entity.StreamSession, error) {
	if f.session == nil || f.session.UserID != userID {
		return nil, apperrors.ErrSessionNotFound
	}
	return f.session, nil
}

func (f *fakeChat) Trace(context.Context, string, string) (*registry.Trace, error) {
	if f.traceErr != nil {
		return nil, f.traceErr
	}
	return &registry.Trace{Session: f.session}, nil
}

func (f *fakeChat) Tasks(_ context.Context, _, _ string, _ entity.TaskStatus, pagination repository.Pagination) (*repository.PagedResult[*entity.TaskEntry], error) {
	f.page = pagination
	return repository.NewPagedResult([]*entity.TaskEntry{}, 0, pagination), nil
}

func (f *fakeChat) ResolveCursor(_ context.Context, _, _, lastEventID, from string) (int64, error) {
	f.cursorArg = [2]string{lastEventID, from}
	return 0, f.cursorErr
}

func (f *fakeChat) Ack(_ context.Context, _ string, seq int64) {
	f.acked = append(f.acked, seq)
}

// streamRecorder c.Stream 依赖 CloseNotify
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

// brokenStream 写出响应头后所有 body 写入失败，模拟客户端断开
type brokenStream struct {
	*streamRecorder
}

func (b brokenStream) Write([]byte) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func (b brokenStream) WriteString(string) (int, error) {
	return 0, errors.New("connection reset by peer")
}

func (f *fakeChat) Subscribe(context.Context, string, string, int64) (<-chan entity.StreamChunk, error) {
	out := make(chan entity.StreamChunk, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

func newTestEngine(chat ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(chat, "")
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User-ID"))
		c.Next()
	})
	engine.POST("/api/v1/chat/start", h.Start)
	engine.GET("/api/v1/chat/stream/:request_id", h.Stream)
	engine.POST("/api/v1/chat/cancel/:request_id", h.Cancel)
	engine.GET("/api/v1/chat/sessions/:request_id", h.GetSession)
	engine.GET("/api/v1/chat/trace/:request_id", h.GetTrace)
	engine.GET("/api/v1/chat/sessions/:request_id/tasks", h.ListTasks)
	return engine
}

func doRequest(engine *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	detail, _ := body["error"].(map[string]any)
	return detail
}

func TestChatStartAccepted(t *testing.T) {
	chat := &fakeChat{}
	engine := newTestEngine(chat)

	w := doRequest(engine, http.MethodPost, "/api/v1/chat/start",
		`{"question":"Can my landlord keep the deposit?","conversation_id":"c1","conversation_context":[{"role":"user","content":"hi"}]}`,
		map[string]string{"X-User-ID": "u1"})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Data struct {
			RequestID string `json:"request_id"`
			Status    string `json:"status"`
			StreamURL string `json:"stream_url"`
			ExpiresAt string `json:"expires_at"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-1", resp.Data.RequestID)
	assert.Equal(t, "pending", resp.Data.Status)
	assert.Equal(t, "/api/v1/chat/stream/req-1?token=a.b.c", resp.Data.StreamURL)
	assert.Equal(t, "2026-01-01T00:01:00Z", resp.Data.ExpiresAt)
	assert.Equal(t, "u1", chat.started.UserID)
	assert.Len(t, chat.started.Context, 1)
}

func TestChatStartAbsoluteStreamURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(&fakeChat{}, "https://legal.example.com/")
	engine := gin.New()
	engine.POST("/api/v1/chat/start", h.Start)

	w := doRequest(engine, http.MethodPost, "/api/v1/chat/start", `{"question":"q","conversation_id":"c"}`, nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"stream_url":"https://legal.example.com/api/v1/chat/stream/req-1?token=a.b.c"`)
}

func TestChatStartCapacityExceeded(t *testing.T) {
	t.Run("global", func(t *testing.T) {
		engine := newTestEngine(&fakeChat{startErr: stream.ErrCapacityExceeded})
		w := doRequest(engine, http.MethodPost, "/api/v1/chat/start", `{"question":"q","conversation_id":"c"}`, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "capacity_exceeded", decodeError(t, w)["error_code"])
	})
	t.Run("per user", func(t *testing.T) {
		engine := newTestEngine(&fakeChat{startErr: stream.ErrUserCapacityExceeded})
		w := doRequest(engine, http.MethodPost, "/api/v1/chat/start", `{"question":"q","conversation_id":"c"}`, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		detail := decodeError(t, w)
		assert.Equal(t, "capacity_exceeded", detail["error_code"])
		assert.Equal(t, "per_user", detail["details"])
	})
}

func TestChatStartBadRequest(t *testing.T) {
	engine := newTestEngine(&fakeChat{})
	w := doRequest(engine, http.MethodPost, "/api/v1/chat/start", `{"conversation_id":"c"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamWritesSSE(t *testing.T) {
	answer, err := entity.NewChunk("req-1", entity.ChunkAnswer, entity.AnswerPayload{Delta: "hello"})
	require.NoError(t, err)
	complete, err := entity.NewChunk("req-1", entity.ChunkComplete, entity.FinalPayload{Status: entity.SessionCompleted})
	require.NoError(t, err)
	answer.SequenceNo = 3
	complete.SequenceNo = 4
	chat := &fakeChat{chunks: []entity.StreamChunk{answer, complete}}
	engine := newTestEngine(chat)

	w := newStreamRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/stream/req-1?from=2", nil)
	req.Header.Set("Last-Event-ID", "2")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"))
	assert.Equal(t, [2]string{"2", "2"}, chat.cursorArg)

	var ids, events []string
	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			ids = append(ids, strings.TrimSpace(strings.TrimPrefix(line, "id:")))
		case strings.HasPrefix(line, "event:"):
			events = append(events, strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		}
	}
	assert.Equal(t, []string{"3", "4"}, ids)
	assert.Equal(t, []string{"answer", "complete"}, events)
	assert.Equal(t, []int64{3, 4}, chat.acked)
}

func TestChatStreamDoesNotAckFailedWrites(t *testing.T) {
	answer, err := entity.NewChunk("req-1", entity.ChunkAnswer, entity.AnswerPayload{Delta: "hello"})
	require.NoError(t, err)
	answer.SequenceNo = 1
	chat := &fakeChat{chunks: []entity.StreamChunk{answer}}
	engine := newTestEngine(chat)

	w := brokenStream{newStreamRecorder()}
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/chat/stream/req-1", nil))

	assert.Empty(t, chat.acked)
}

func TestChatStreamInvalidCursor(t *testing.T) {
	chat := &fakeChat{cursorErr: fmt.Errorf("%w: cursor %q", stream.ErrInvalidInput, "abc")}
	engine := newTestEngine(chat)

	w := doRequest(engine, http.MethodGet, "/api/v1/chat/stream/req-1", "", map[string]string{"Last-Event-ID": "abc"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "1001", decodeError(t, w)["error_code"])
}

func TestChatListTasksPagination(t *testing.T) {
	chat := &fakeChat{}
	engine := newTestEngine(chat)

	w := doRequest(engine, http.MethodGet, "/api/v1/chat/sessions/req-1/tasks?page=2&page_size=500", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, repository.Pagination{Page: 2, PageSize: repository.MaxPageSize}, chat.page)

	w = doRequest(engine, http.MethodGet, "/api/v1/chat/sessions/req-1/tasks?page=x&page_size=-1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, repository.Pagination{Page: 1, PageSize: repository.DefaultPageSize}, chat.page)
}

func TestChatCancel(t *testing.T) {
	chat := &fakeChat{session: &entity.StreamSession{RequestID: "req-1", UserID: "u1", Status: entity.SessionReasoning}}
	engine := newTestEngine(chat)

	w := doRequest(engine, http.MethodPost, "/api/v1/chat/cancel/req-1", "", map[string]string{"X-User-ID": "u1"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelling"`)

	w = doRequest(engine, http.MethodPost, "/api/v1/chat/cancel/req-1", "", map[string]string{"X-User-ID": "u2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChatTraceNotCompleted(t *testing.T) {
	chat := &fakeChat{
		session:  &entity.StreamSession{RequestID: "req-1", UserID: "u1", Status: entity.SessionStreaming},
		traceErr: apperrors.ErrSessionNotCompleted.WithDetail("streaming"),
	}
	engine := newTestEngine(chat)

	w := doRequest(engine, http.MethodGet, "/api/v1/chat/trace/req-1", "", map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "streaming", decodeError(t, w)["details"])
}

func TestChatSessionHidesRawErrors(t *testing.T) {
	chat := &fakeChat{session: &entity.StreamSession{
		RequestID:     "req-1",
		UserID:        "u1",
		Status:        entity.SessionFailed,
		FailureReason: entity.ReasonRetrievalUnavailable,
		OwnerInstance: "host-a",
	}}
	engine := newTestEngine(chat)

	w := doRequest(engine, http.MethodGet, "/api/v1/chat/sessions/req-1", "", map[string]string{"X-User-ID": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"retrieval_unavailable"`)
	assert.NotContains(t, w.Body.String(), "host-a")
}
