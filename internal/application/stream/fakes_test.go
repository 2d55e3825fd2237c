package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"legal-rag-api/internal/application/reasoning"
	"legal-rag-api/internal/application/retrieval"
	"legal-rag-api/internal/domain/entity"
)

// memBuffer 内存分片缓冲区，语义与 Redis 实现一致：序号从 1 递增，终止分片后拒绝写入
type memBuffer struct {
	mu      sync.Mutex
	streams map[string][]entity.StreamChunk
	closed  map[string]bool
	notify  chan struct{}
}

func newMemBuffer() *memBuffer {
	return &memBuffer{
		streams: make(map[string][]entity.StreamChunk),
		closed:  make(map[string]bool),
		notify:  make(chan struct{}),
	}
}

func (b *memBuffer) Append(_ context.Context, chunk entity.StreamChunk) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed[chunk.RequestID] {
		return 0, ErrBufferClosed
	}
	chunk.SequenceNo = int64(len(b.streams[chunk.RequestID]) + 1)
	b.streams[chunk.RequestID] = append(b.streams[chunk.RequestID], chunk)
	if chunk.IsFinal {
		b.closed[chunk.RequestID] = true
	}
	close(b.notify)
	b.notify = make(chan struct{})
	return chunk.SequenceNo, nil
}

func (b *memBuffer) Read(ctx context.Context, requestID string, afterSeq int64, block time.Duration) ([]entity.StreamChunk, error) {
	deadline := time.NewTimer(block)
	defer deadline.Stop()
	for {
		b.mu.Lock()
		all := b.streams[requestID]
		var out []entity.StreamChunk
		if afterSeq < int64(len(all)) {
			out = append(out, all[afterSeq:]...)
		}
		wait := b.notify
		b.mu.Unlock()
		if len(out) > 0 {
			return out, nil
		}
		select {
		case <-wait:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *memBuffer) all(requestID string) []entity.StreamChunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]entity.StreamChunk(nil), b.streams[requestID]...)
}

// memControl 内存取消与在线标记
type memControl struct {
	mu       sync.Mutex
	cancels  map[string]bool
	attached map[string]time.Time
	// alwaysAttached 为 true 时忽略在线标记
	alwaysAttached bool
}

func newMemControl() *memControl {
	return &memControl{
		cancels:        make(map[string]bool),
		attached:       make(map[string]time.Time),
		alwaysAttached: true,
	}
}

func (c *memControl) RequestCancel(_ context.Context, requestID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels[requestID] = true
	return nil
}

func (c *memControl) IsCancelRequested(_ context.Context, requestID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels[requestID], nil
}

func (c *memControl) MarkAttached(_ context.Context, requestID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached[requestID] = time.Now().Add(ttl)
	return nil
}

func (c *memControl) IsAttached(_ context.Context, requestID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alwaysAttached {
		return true, nil
	}
	return time.Now().Before(c.attached[requestID]), nil
}

type stubClassifier struct{ strategy entity.RetrievalStrategy }

func (s stubClassifier) Classify(context.Context, entity.Query) entity.RetrievalStrategy {
	return s.strategy
}

type stubRetriever struct {
	set     entity.EvidenceSet
	partial bool
	err     error
}

func (s stubRetriever) Retrieve(_ context.Context, _ entity.Query, strategy entity.RetrievalStrategy) (entity.EvidenceSet, *retrieval.Report, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.set, &retrieval.Report{Strategy: strategy, PartialEvidence: s.partial}, nil
}

// stubReasoner 依次上报 8 个阶段；gate 非空时在第一阶段后等待
type stubReasoner struct {
	answer    string
	citations []entity.Citation
	err       error
	gate      chan struct{}
	// waitCancel 为 true 时轮询 CancelCheck 直到取消
	waitCancel bool
	entered    chan struct{}
	// interrupted 等待 gate 期间 ctx 被取消
	interrupted atomic.Bool
}

func (s *stubReasoner) Run(ctx context.Context, in reasoning.RunInput) (*reasoning.Result, error) {
	for i, stage := range entity.Stages {
		ordinal := i + 1
		if in.CancelCheck != nil && in.CancelCheck(ctx) {
			return nil, reasoning.ErrCancelled
		}
		in.Recorder.StageEvent(ctx, ordinal, stage, reasoning.StageStarted)
		if ordinal == 1 {
			if s.entered != nil {
				close(s.entered)
			}
			if s.gate != nil {
				select {
				case <-s.gate:
				case <-ctx.Done():
					s.interrupted.Store(true)
					return nil, reasoning.ErrCancelled
				}
			}
			for s.waitCancel {
				if in.CancelCheck(ctx) {
					return nil, reasoning.ErrCancelled
				}
				time.Sleep(5 * time.Millisecond)
			}
		}
		if s.err != nil && ordinal == 4 {
			in.Recorder.StageEvent(ctx, ordinal, stage, reasoning.StageFailed)
			return nil, s.err
		}
		step := &entity.ReasoningStep{RequestID: in.RequestID, Ordinal: ordinal, StageName: stage, Attempts: 1}
		if err := in.Recorder.RecordStep(ctx, step); err != nil {
			return nil, err
		}
		in.Recorder.StageEvent(ctx, ordinal, stage, reasoning.StageCompleted)
	}
	return &reasoning.Result{Answer: s.answer, Citations: s.citations}, nil
}
