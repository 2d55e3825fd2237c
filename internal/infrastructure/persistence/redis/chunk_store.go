package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
)

// appendScript 原子地分配序号并以 <seq>-1 为 ID 写入；终止分片之后拒绝写入
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[2])
redis.call('XADD', KEYS[1], 'MAXLEN', '~', ARGV[1], seq .. '-1', 'kind', ARGV[2], 'payload', ARGV[3], 'final', ARGV[4])
if ARGV[4] == '1' then
	redis.call('SET', KEYS[3], seq, 'PX', ARGV[5])
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('PEXPIRE', KEYS[2], ARGV[5])
return seq
`)

const readBatch = 256

// ChunkStore 基于 Redis Stream 的分片缓冲区
type ChunkStore struct {
	client *Client
	ttl    time.Duration
	maxLen int64
}

// NewChunkStore 创建分片缓冲区
func NewChunkStore(client *Client, cfg *config.StreamConfig) *ChunkStore {
	ttl := cfg.BufferTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	maxLen := cfg.BufferMaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &ChunkStore{client: client, ttl: ttl, maxLen: maxLen}
}

var _ stream.ChunkBuffer = (*ChunkStore)(nil)

func (s *ChunkStore) keys(requestID string) []string {
	// hash tag 保证同一请求的键落在同一 slot
	tag := "{" + requestID + "}"
	return []string{
		s.client.Key("stream", tag, "chunks"),
		s.client.Key("stream", tag, "seq"),
		s.client.Key("stream", tag, "final"),
	}
}

// Append 追加分片
func (s *ChunkStore) Append(ctx context.Context, chunk entity.StreamChunk) (int64, error) {
	ctx, span := tracer.Start(ctx, "redis.ChunkStore.Append",
		trace.WithAttributes(
			attribute.String("stream.request_id", chunk.RequestID),
			attribute.String("stream.kind", string(chunk.Kind)),
		))
	defer span.End()

	final := "0"
	if chunk.IsFinal {
		final = "1"
	}
	seq, err := appendScript.Run(ctx, s.client.rdb, s.keys(chunk.RequestID),
		s.maxLen, string(chunk.Kind), string(chunk.Payload), final, s.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to append chunk: %w", err)
	}
	if seq == 0 {
		return 0, stream.ErrBufferClosed
	}
	span.SetAttributes(attribute.Int64("stream.sequence_no", seq))
	return seq, nil
}

// Read 读取 afterSeq 之后的分片
func (s *ChunkStore) Read(ctx context.Context, requestID string, afterSeq int64, block time.Duration) ([]entity.StreamChunk, error) {
	ctx, span := tracer.Start(ctx, "redis.ChunkStore.Read",
		trace.WithAttributes(
			attribute.String("stream.request_id", requestID),
			attribute.Int64("stream.after_seq", afterSeq),
		))
	defer span.End()

	if block <= 0 {
		block = -1
	}
	streams, err := s.client.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.keys(requestID)[0], fmt.Sprintf("%d-1", afterSeq)},
		Count:   readBatch,
		Block:   block,
	}).Result()
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	var out []entity.StreamChunk
	for _, st := range streams {
		for _, msg := range st.Messages {
			chunk, err := decodeChunk(requestID, msg)
			if err != nil {
				span.RecordError(err)
				return nil, err
			}
			out = append(out, chunk)
		}
	}
	return out, nil
}

func decodeChunk(requestID string, msg redis.XMessage) (entity.StreamChunk, error) {
	seqPart, _, _ := strings.Cut(msg.ID, "-")
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil {
		return entity.StreamChunk{}, fmt.Errorf("invalid chunk id %q: %w", msg.ID, err)
	}
	kind, _ := msg.Values["kind"].(string)
	payload, _ := msg.Values["payload"].(string)
	final, _ := msg.Values["final"].(string)
	return entity.StreamChunk{
		RequestID:  requestID,
		SequenceNo: seq,
		Kind:       entity.ChunkKind(kind),
		Payload:    []byte(payload),
		IsFinal:    final == "1",
	}, nil
}
