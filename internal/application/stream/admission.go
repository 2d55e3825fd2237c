package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"legal-rag-api/internal/config"
	"legal-rag-api/pkg/metrics"
)

// Admission 进程内计数信号量；queue 模式下按到达顺序等待
type Admission struct {
	slots        chan struct{}
	queue        bool
	queueSize    int64
	queueTimeout time.Duration
	waiting      atomic.Int64
}

// NewAdmission 创建准入控制
func NewAdmission(cfg config.StreamConfig) *Admission {
	capacity := cfg.MaxConcurrent
	if capacity <= 0 {
		capacity = 1
	}
	timeout := cfg.QueueTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Admission{
		slots:        make(chan struct{}, capacity),
		queue:        strings.EqualFold(cfg.AdmissionMode, config.AdmissionModeQueue),
		queueSize:    int64(cfg.QueueSize),
		queueTimeout: timeout,
	}
}

// Acquire 获取一个名额，返回幂等的释放函数；超限返回 ErrCapacityExceeded
func (a *Admission) Acquire(ctx context.Context) (func(), error) {
	select {
	case a.slots <- struct{}{}:
		metrics.AdmissionTotal.WithLabelValues("admitted").Inc()
		return a.releaser(), nil
	default:
	}

	if !a.queue {
		metrics.AdmissionTotal.WithLabelValues("rejected").Inc()
		return nil, ErrCapacityExceeded
	}
	if a.waiting.Add(1) > a.queueSize {
		a.waiting.Add(-1)
		metrics.AdmissionTotal.WithLabelValues("rejected").Inc()
		return nil, ErrCapacityExceeded
	}
	defer a.waiting.Add(-1)

	start := time.Now()
	timer := time.NewTimer(a.queueTimeout)
	defer timer.Stop()

	select {
	case a.slots <- struct{}{}:
		metrics.AdmissionQueueWait.Observe(time.Since(start).Seconds())
		metrics.AdmissionTotal.WithLabelValues("queued").Inc()
		return a.releaser(), nil
	case <-timer.C:
		metrics.AdmissionTotal.WithLabelValues("rejected").Inc()
		return nil, ErrCapacityExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Admission) releaser() func() {
	metrics.ActiveStreams.Inc()
	var once sync.Once
	return func() {
		once.Do(func() {
			<-a.slots
			metrics.ActiveStreams.Dec()
		})
	}
}

// InUse 已占用名额
func (a *Admission) InUse() int {
	return len(a.slots)
}

// Waiting 排队中的请求数
func (a *Admission) Waiting() int {
	return int(a.waiting.Load())
}

// Capacity 并发上限
func (a *Admission) Capacity() int {
	return cap(a.slots)
}
