package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"legal-rag-api/internal/infrastructure/persistence/milvus"
	"legal-rag-api/internal/infrastructure/persistence/postgres"
	"legal-rag-api/internal/infrastructure/persistence/redis"
)

// Pinger 依赖探活
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// CapacityReporter 流式准入占用情况
type CapacityReporter interface {
	InUse() int
	Waiting() int
	Capacity() int
}

type dependency struct {
	name     string
	pinger   Pinger
	required bool
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	deps     []dependency
	capacity CapacityReporter
	timeout  time.Duration
}

// NewHealthHandler 创建健康检查处理器；Milvus 为可选依赖，不可用时仅降级语义检索
func NewHealthHandler(pg *postgres.Client, redisClient *redis.Client, milvusClient *milvus.Client, capacity CapacityReporter) *HealthHandler {
	deps := []dependency{
		{name: "postgres", required: true},
		{name: "redis", required: true},
		{name: "milvus"},
	}
	if pg != nil {
		deps[0].pinger = pg
	}
	if redisClient != nil {
		deps[1].pinger = redisClient
	}
	if milvusClient != nil {
		deps[2].pinger = milvusClient
	}
	return newHealthHandler(deps, capacity)
}

func newHealthHandler(deps []dependency, capacity CapacityReporter) *HealthHandler {
	return &HealthHandler{deps: deps, capacity: capacity, timeout: 2 * time.Second}
}

type dependencyCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type streamCapacity struct {
	Active   int `json:"active"`
	Waiting  int `json:"waiting"`
	Capacity int `json:"capacity"`
}

type healthResponse struct {
	Status  string                      `json:"status"`
	Checks  map[string]*dependencyCheck `json:"checks,omitempty"`
	Streams *streamCapacity             `json:"streams,omitempty"`
}

// Health 报告各依赖状态，始终返回 200
// @Summary 健康检查
// @Tags System
// @Produce json
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	resp, _ := h.check(c.Request.Context())
	c.JSON(http.StatusOK, resp)
}

// Ready 必需依赖不可用时返回 503
// @Summary 就绪检查
// @Tags System
// @Produce json
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	resp, ready := h.check(c.Request.Context())
	if !ready {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查
// @Summary 存活检查
// @Tags System
// @Produce json
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) check(ctx context.Context) (*healthResponse, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	resp := &healthResponse{Status: "ok", Checks: make(map[string]*dependencyCheck, len(h.deps))}
	ready := true
	for _, dep := range h.deps {
		check := &dependencyCheck{}
		resp.Checks[dep.name] = check

		if dep.pinger == nil {
			if dep.required {
				check.Status = "missing"
				ready = false
			} else {
				check.Status = "disabled"
			}
			continue
		}

		start := time.Now()
		err := dep.pinger.HealthCheck(ctx)
		check.LatencyMs = time.Since(start).Milliseconds()
		switch {
		case err == nil:
			check.Status = "ok"
		case dep.required:
			check.Status = "error"
			check.Error = err.Error()
			ready = false
		default:
			check.Status = "degraded"
			check.Error = err.Error()
		}
	}

	if h.capacity != nil {
		resp.Streams = &streamCapacity{
			Active:   h.capacity.InUse(),
			Waiting:  h.capacity.Waiting(),
			Capacity: h.capacity.Capacity(),
		}
	}
	if !ready {
		resp.Status = "not_ready"
	}
	return resp, ready
}
