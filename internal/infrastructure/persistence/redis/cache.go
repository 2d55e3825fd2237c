package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache JSON 读穿缓存，同一键的并发加载只执行一次
type Cache struct {
	client *Client
	group  singleflight.Group
}

func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// Key 生成带前缀的缓存键
func (c *Cache) Key(parts ...string) string {
	return c.client.Key(parts...)
}

// ReadThrough 命中时返回缓存的 JSON；未命中或 Redis 不可用时调用 loader 并回填，hit 表示来自缓存
func (c *Cache) ReadThrough(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.ReadThrough",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, true, nil
	case !IsNil(err):
		span.RecordError(err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// 加载不随首个调用方取消，避免连带失败其他等待者
	loadCtx := context.WithoutCancel(ctx)
	result, err, shared := c.group.Do(key, func() (any, error) {
		data, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal cache value: %w", err)
		}
		if err := c.client.rdb.Set(loadCtx, key, raw, ttl).Err(); err != nil {
			span.RecordError(err)
		}
		return raw, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, false, err
	}
	return result.([]byte), false, nil
}
