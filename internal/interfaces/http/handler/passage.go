package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"legal-rag-api/internal/infrastructure/messaging"
	"legal-rag-api/internal/interfaces/http/dto"
)

// IngestPublisher 法规入库任务发布
type IngestPublisher interface {
	PublishIngest(ctx context.Context, doc *messaging.IngestMessage) (string, error)
	PublishDelete(ctx context.Context, documentID string) (string, error)
}

// PassageHandler 法规文本管理处理器，入库由 job-worker 异步完成
type PassageHandler struct {
	publisher IngestPublisher
}

// NewPassageHandler 创建法规文本管理处理器
func NewPassageHandler(publisher IngestPublisher) *PassageHandler {
	return &PassageHandler{publisher: publisher}
}

// Ingest 提交法规文本入库
// @Summary 提交法规文本
// @Tags Passages
// @Accept json
// @Produce json
// @Param body body dto.IngestDocumentRequest true "法规文本"
// @Success 202 {object} dto.Response[dto.IngestDocumentResponse]
// @Router /api/v1/admin/passages [post]
func (h *PassageHandler) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.IngestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	msg := &messaging.IngestMessage{
		DocumentID:   strings.TrimSpace(req.DocumentID),
		Title:        strings.TrimSpace(req.Title),
		Jurisdiction: strings.TrimSpace(req.Jurisdiction),
		ActName:      strings.TrimSpace(req.ActName),
		Section:      strings.TrimSpace(req.Section),
		Tags:         req.Tags,
		Text:         req.Text,
	}
	if req.EffectiveAt != "" {
		t, err := time.Parse(time.DateOnly, req.EffectiveAt)
		if err != nil {
			dto.BadRequest(c, "effective_at must be YYYY-MM-DD")
			return
		}
		msg.EffectiveAt = &t
	}

	messageID, err := h.publisher.PublishIngest(ctx, msg)
	if err != nil {
		writeError(c, err, "publish ingest")
		return
	}
	dto.Accepted(c, dto.IngestDocumentResponse{DocumentID: msg.DocumentID, MessageID: messageID})
}

// Delete 删除法规文本
// @Summary 删除法规文本
// @Tags Passages
// @Produce json
// @Param document_id path string true "文档 ID"
// @Success 202 {object} dto.Response[dto.IngestDocumentResponse]
// @Router /api/v1/admin/passages/{document_id} [delete]
func (h *PassageHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	documentID := strings.TrimSpace(c.Param("document_id"))
	if documentID == "" {
		dto.BadRequest(c, "document_id is required")
		return
	}

	messageID, err := h.publisher.PublishDelete(ctx, documentID)
	if err != nil {
		writeError(c, err, "publish delete")
		return
	}
	dto.Accepted(c, dto.IngestDocumentResponse{DocumentID: documentID, MessageID: messageID})
}
