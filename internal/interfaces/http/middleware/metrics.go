package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"legal-rag-api/pkg/metrics"
)

// Metrics Prometheus 指标采集；SSE 连接单独记录生命周期，不计入请求耗时直方图
func Metrics(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.FullPath()
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}
		if path == "" {
			path = "unknown"
		}
		start := time.Now()
		method := c.Request.Method

		if reqSize := float64(c.Request.ContentLength); reqSize > 0 {
			metrics.HTTPRequestSize.WithLabelValues(method, path).Observe(reqSize)
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()

		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			metrics.SSEConnectionDuration.WithLabelValues(path).Observe(duration)
			return
		}

		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
		if respSize := float64(c.Writer.Size()); respSize > 0 {
			metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(respSize)
		}
	}
}
