// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/interfaces/http/dto"
	apperrors "legal-rag-api/pkg/errors"
	"legal-rag-api/pkg/logger"
)

// writeError 将应用错误映射为 HTTP 响应，原始错误只写日志
func writeError(c *gin.Context, err error, action string) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, stream.ErrUserCapacityExceeded):
		writeAppError(c, apperrors.ErrCapacityExceeded.WithDetail("per_user"))
		return
	case errors.Is(err, stream.ErrCapacityExceeded):
		writeAppError(c, apperrors.ErrCapacityExceeded)
		return
	case errors.Is(err, stream.ErrInvalidInput):
		writeAppError(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return
	case errors.Is(err, stream.ErrClosed):
		writeAppError(c, apperrors.ErrServiceUnavailable)
		return
	}

	if apperrors.IsAppError(err) {
		writeAppError(c, apperrors.AsAppError(err))
		return
	}

	logger.Error(ctx, "failed to "+action, err)
	dto.InternalError(c, "failed to "+action)
}

func writeAppError(c *gin.Context, appErr *apperrors.AppError) {
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	dto.ErrorWithDetail(c, status, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}
