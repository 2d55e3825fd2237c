package stream

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/pkg/logger"
)

const (
	subscribeBuffer = 16
	readRetryDelay  = 200 * time.Millisecond
)

// ResolveCursor 续传起点：Last-Event-ID，其次 from 参数，最后取会话记录的已投递序号
func (o *Orchestrator) ResolveCursor(ctx context.Context, requestID, userID, lastEventID, from string) (int64, error) {
	for _, raw := range []string{lastEventID, from} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || seq < 0 {
			return 0, fmt.Errorf("%w: cursor %q", ErrInvalidInput, raw)
		}
		return seq, nil
	}
	session, err := o.ownedSession(ctx, requestID, userID)
	if err != nil {
		return 0, err
	}
	return session.DeliveredSeqNo, nil
}

// Subscribe 从 afterSeq 之后按序投递分片；终止分片之后或 ctx 结束时关闭通道。
// 通道只负责读出，已投递序号由调用方写出成功后通过 Ack 推进
func (o *Orchestrator) Subscribe(ctx context.Context, requestID, userID string, afterSeq int64) (<-chan entity.StreamChunk, error) {
	if _, err := o.ownedSession(ctx, requestID, userID); err != nil {
		return nil, err
	}
	ctx = logger.WithRequest(ctx, requestID, userID)
	if err := o.control.MarkAttached(ctx, requestID, o.cfg.DisconnectGrace); err != nil {
		logger.Warn(ctx, "failed to mark subscriber attached", "error", err)
	}

	out := make(chan entity.StreamChunk, subscribeBuffer)
	go o.deliver(ctx, requestID, afterSeq, out)
	return out, nil
}

func (o *Orchestrator) deliver(ctx context.Context, requestID string, cursor int64, out chan<- entity.StreamChunk) {
	defer close(out)

	attachEvery := o.cfg.DisconnectGrace / 3
	lastAttach := time.Now()
	terminalSeen := false

	for ctx.Err() == nil {
		if time.Since(lastAttach) >= attachEvery {
			if err := o.control.MarkAttached(ctx, requestID, o.cfg.DisconnectGrace); err != nil && ctx.Err() == nil {
				logger.Warn(ctx, "failed to refresh subscriber presence", "error", err)
			}
			lastAttach = time.Now()
		}

		block := o.cfg.PollBlock
		if attachEvery > 0 && block > attachEvery {
			block = attachEvery
		}
		chunks, err := o.buffer.Read(ctx, requestID, cursor, block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "failed to read chunks", "cursor", cursor, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		if len(chunks) == 0 {
			// 缓冲区可能已过期：会话终态且连续两次无新分片时结束
			session, err := o.registry.GetSession(ctx, requestID)
			if err == nil && session.Status.IsTerminal() && cursor >= session.LastSequenceNo {
				if terminalSeen {
					return
				}
				terminalSeen = true
			}
			continue
		}
		terminalSeen = false

		final := false
		for _, chunk := range chunks {
			if chunk.SequenceNo <= cursor {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			cursor = chunk.SequenceNo
			if chunk.IsFinal {
				final = true
				break
			}
		}
		if final {
			return
		}
	}
}

// Ack 客户端已收到 seq 及之前的分片，推进会话的已投递序号
func (o *Orchestrator) Ack(ctx context.Context, requestID string, seq int64) {
	if err := o.registry.AdvanceDelivered(context.WithoutCancel(ctx), requestID, seq); err != nil {
		logger.Warn(ctx, "failed to advance delivered cursor", "seq", seq, "error", err)
	}
}
