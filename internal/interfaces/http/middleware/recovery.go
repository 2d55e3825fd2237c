// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"legal-rag-api/pkg/errors"
	"legal-rag-api/pkg/logger"
)

// Recovery 捕获 panic；SSE 已开始输出时只断开连接，不再追加 JSON
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			logger.Error(c.Request.Context(), "panic recovered",
				fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"path", c.FullPath(),
				"method", c.Request.Method,
				"request_id", c.Param("request_id"),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    http.StatusInternalServerError,
				"message": "internal server error",
				"error": gin.H{
					"error_code": errors.CodeInternalError,
				},
				"trace_id": c.GetString("trace_id"),
			})
		}()

		c.Next()
	}
}
