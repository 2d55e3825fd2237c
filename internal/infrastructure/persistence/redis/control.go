package redis

import (
	"context"
	"fmt"
	"time"

	"legal-rag-api/internal/application/stream"
	"legal-rag-api/internal/config"
)

// ControlStore 取消标记与订阅在线标记
type ControlStore struct {
	client    *Client
	cancelTTL time.Duration
}

// NewControlStore 创建控制标记存储
func NewControlStore(client *Client, cfg *config.StreamConfig) *ControlStore {
	ttl := cfg.BufferTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ControlStore{client: client, cancelTTL: ttl}
}

var _ stream.Control = (*ControlStore)(nil)

func (s *ControlStore) cancelKey(requestID string) string {
	return s.client.Key("stream", "{"+requestID+"}", "cancel")
}

func (s *ControlStore) attachedKey(requestID string) string {
	return s.client.Key("stream", "{"+requestID+"}", "attached")
}

// RequestCancel 设置取消标记
func (s *ControlStore) RequestCancel(ctx context.Context, requestID string) error {
	ctx, span := tracer.Start(ctx, "redis.ControlStore.RequestCancel")
	defer span.End()

	if err := s.client.rdb.Set(ctx, s.cancelKey(requestID), "1", s.cancelTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}
	return nil
}

// IsCancelRequested 是否已请求取消
func (s *ControlStore) IsCancelRequested(ctx context.Context, requestID string) (bool, error) {
	return s.exists(ctx, "redis.ControlStore.IsCancelRequested", s.cancelKey(requestID))
}

// MarkAttached 刷新订阅在线标记
func (s *ControlStore) MarkAttached(ctx context.Context, requestID string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.ControlStore.MarkAttached")
	defer span.End()

	if err := s.client.rdb.Set(ctx, s.attachedKey(requestID), "1", ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark attached: %w", err)
	}
	return nil
}

// IsAttached 宽限期内是否有订阅者
func (s *ControlStore) IsAttached(ctx context.Context, requestID string) (bool, error) {
	return s.exists(ctx, "redis.ControlStore.IsAttached", s.attachedKey(requestID))
}

func (s *ControlStore) exists(ctx context.Context, spanName, key string) (bool, error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	n, err := s.client.rdb.Exists(ctx, key).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to check key: %w", err)
	}
	return n > 0, nil
}
