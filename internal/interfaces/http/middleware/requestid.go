// Package middleware 提供 HTTP 中间件
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"legal-rag-api/pkg/logger"
)

// RequestIDHeader 链路请求 ID 头；与流式会话的 request_id 无关
const RequestIDHeader = "X-Request-ID"

const maxInboundRequestIDLen = 128

// RequestID 透传或生成 HTTP 请求 ID，写入日志上下文与响应头
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validInboundID(id) {
			id = uuid.NewString()
		}

		c.Set("http_request_id", id)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.HTTPRequestIDKey, id))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// validInboundID 只接受长度受限的可见 ASCII，防止日志注入
func validInboundID(id string) bool {
	if id == "" || len(id) > maxInboundRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}
