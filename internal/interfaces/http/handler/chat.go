package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"legal-rag-api/internal/application/registry"
	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
	"legal-rag-api/internal/interfaces/http/dto"
	"legal-rag-api/internal/interfaces/http/middleware"
	"legal-rag-api/pkg/logger"
)

// keepAliveInterval SSE 注释心跳间隔，避免代理断开空闲连接
const keepAliveInterval = 15 * time.Second

// ChatService 流式问答编排
type ChatService interface {
	Start(ctx context.Context, in stream.StartInput) (*stream.StartOutput, error)
	Cancel(ctx context.Context, requestID, userID string) (*entity.StreamSession, error)
	Session(ctx context.Context, requestID, userID string) (*entity.StreamSession, error)
	Trace(ctx context.Context, requestID, userID string) (*registry.Trace, error)
	Tasks(ctx context.Context, requestID, userID string, status entity.TaskStatus, pagination repository.Pagination) (*repository.PagedResult[*entity.TaskEntry], error)
	ResolveCursor(ctx context.Context, requestID, userID, lastEventID, from string) (int64, error)
	Subscribe(ctx context.Context, requestID, userID string, afterSeq int64) (<-chan entity.StreamChunk, error)
	Ack(ctx context.Context, requestID string, seq int64)
}

var _ ChatService = (*stream.Orchestrator)(nil)

// ChatHandler 流式问答处理器
type ChatHandler struct {
	chat     ChatService
	basePath string
}

// NewChatHandler 创建流式问答处理器；publicBaseURL 为空时 stream_url 为相对路径
func NewChatHandler(chat ChatService, publicBaseURL string) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		basePath: strings.TrimRight(publicBaseURL, "/") + "/api/v1/chat",
	}
}

// Start 发起问答
// @Summary 发起法律问答
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.ChatStartRequest true "问题"
// @Success 202 {object} dto.Response[dto.ChatStartResponse]
// @Failure 429 {object} dto.ErrorResponse
// @Router /api/v1/chat/start [post]
func (h *ChatHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.ChatStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	out, err := h.chat.Start(ctx, stream.StartInput{
		UserID:         middleware.GetUserIDFromGin(c),
		ConversationID: req.ConversationID,
		Question:       req.Question,
		Context:        req.ToTurns(),
	})
	if err != nil {
		writeError(c, err, "start chat")
		return
	}

	streamURL := h.basePath + "/stream/" + out.RequestID
	resp := dto.ChatStartResponse{
		RequestID: out.RequestID,
		Status:    string(out.Status),
		StreamURL: streamURL,
	}
	if out.StreamToken != "" {
		resp.StreamToken = out.StreamToken
		resp.StreamURL = streamURL + "?token=" + url.QueryEscape(out.StreamToken)
		resp.ExpiresAt = out.ExpiresAt.UTC().Format(time.RFC3339)
	}
	dto.Accepted(c, resp)
}

// Stream 以 SSE 推送分片，支持 Last-Event-ID / from 断点续传
// @Summary 订阅问答流
// @Tags Chat
// @Produce text/event-stream
// @Param request_id path string true "会话 ID"
// @Param token query string false "流令牌"
// @Param from query int false "从该序号之后开始"
// @Success 200 "SSE stream"
// @Router /api/v1/chat/stream/{request_id} [get]
func (h *ChatHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := dto.BindRequestID(c)
	userID := middleware.GetUserIDFromGin(c)

	cursor, err := h.chat.ResolveCursor(ctx, requestID, userID, c.GetHeader("Last-Event-ID"), c.Query("from"))
	if err != nil {
		writeError(c, err, "resolve stream cursor")
		return
	}

	chunks, err := h.chat.Subscribe(ctx, requestID, userID, cursor)
	if err != nil {
		writeError(c, err, "subscribe stream")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	logger.Debug(ctx, "stream attached", "request_id", requestID, "cursor", cursor)

	c.Stream(func(w io.Writer) bool {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{
				Id:    strconv.FormatInt(chunk.SequenceNo, 10),
				Event: string(chunk.Kind),
				Data:  chunk,
			})
			if c.IsAborted() {
				logger.Debug(ctx, "stream write failed", "seq", chunk.SequenceNo)
				return false
			}
			// 写出并刷新后才确认投递
			c.Writer.Flush()
			h.chat.Ack(ctx, requestID, chunk.SequenceNo)
			return !chunk.IsFinal
		case <-keepAlive.C:
			_, err := fmt.Fprint(w, ": keep-alive\n\n")
			return err == nil
		case <-ctx.Done():
			return false
		}
	})
}

// Cancel 请求取消
// @Summary 取消问答
// @Tags Chat
// @Produce json
// @Param request_id path string true "会话 ID"
// @Success 202 {object} dto.Response[dto.ChatCancelResponse]
// @Router /api/v1/chat/cancel/{request_id} [post]
func (h *ChatHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := dto.BindRequestID(c)

	session, err := h.chat.Cancel(ctx, requestID, middleware.GetUserIDFromGin(c))
	if err != nil {
		writeError(c, err, "cancel chat")
		return
	}

	status := "cancelling"
	if session.Status.IsTerminal() {
		status = string(session.Status)
	}
	dto.Accepted(c, dto.ChatCancelResponse{
		RequestID: requestID,
		Status:    status,
	})
}

// GetSession 查询会话状态
// @Summary 查询会话状态
// @Tags Chat
// @Produce json
// @Param request_id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.SessionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/chat/sessions/{request_id} [get]
func (h *ChatHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()

	session, err := h.chat.Session(ctx, dto.BindRequestID(c), middleware.GetUserIDFromGin(c))
	if err != nil {
		writeError(c, err, "get session")
		return
	}
	dto.Success(c, dto.ToSessionResponse(session))
}

// GetTrace 查询已完成会话的证据与推理步骤
// @Summary 查询推理轨迹
// @Tags Chat
// @Produce json
// @Param request_id path string true "会话 ID"
// @Success 200 {object} dto.Response[dto.TraceResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/chat/trace/{request_id} [get]
func (h *ChatHandler) GetTrace(c *gin.Context) {
	ctx := c.Request.Context()

	trace, err := h.chat.Trace(ctx, dto.BindRequestID(c), middleware.GetUserIDFromGin(c))
	if err != nil {
		writeError(c, err, "get trace")
		return
	}
	dto.Success(c, dto.ToTraceResponse(trace))
}

// ListTasks 分页查询会话任务
// @Summary 查询会话任务
// @Tags Chat
// @Produce json
// @Param request_id path string true "会话 ID"
// @Param status query string false "任务状态"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量，上限 100"
// @Success 200 {object} dto.Response[[]dto.TaskResponse]
// @Router /api/v1/chat/sessions/{request_id}/tasks [get]
func (h *ChatHandler) ListTasks(c *gin.Context) {
	ctx := c.Request.Context()

	result, err := h.chat.Tasks(ctx, dto.BindRequestID(c), middleware.GetUserIDFromGin(c),
		entity.TaskStatus(c.Query("status")), dto.BindPage(c))
	if err != nil {
		writeError(c, err, "list tasks")
		return
	}
	dto.Paged(c, dto.ToTaskResponses(result.Items), result)
}
