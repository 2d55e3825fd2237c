package milvus

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"legal-rag-api/internal/config"
)

var tracer = otel.Tracer("milvus")

const (
	defaultHNSWM              = 16
	defaultHNSWEfConstruction = 200
	defaultSearchEf           = 64
)

// Client 封装 Milvus 连接与 legal_passages 集合的索引参数
type Client struct {
	milvus client.Client
	cfg    config.MilvusConfig
}

// NewClient 连接 Milvus；失败时由调用方决定是否关闭语义通道
func NewClient(ctx context.Context, cfg *config.MilvusConfig) (*Client, error) {
	cc := client.Config{Address: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}
	if cfg.User != "" {
		cc.Username = cfg.User
		cc.Password = cfg.Password
	}

	mc, err := client.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("connect milvus %s: %w", cc.Address, err)
	}
	return &Client{milvus: mc, cfg: *cfg}, nil
}

func (c *Client) Close() error {
	return c.milvus.Close()
}

// HealthCheck 连接可用且段落集合已创建才算就绪
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "milvus.HealthCheck")
	defer span.End()

	exists, err := c.milvus.HasCollection(ctx, c.CollectionName(CollectionLegalPassages))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("milvus unreachable: %w", err)
	}
	if !exists {
		return fmt.Errorf("collection %s missing, run bootstrap", c.CollectionName(CollectionLegalPassages))
	}
	return nil
}

// CollectionName 加上部署前缀，便于多环境共用一个 Milvus
func (c *Client) CollectionName(name string) string {
	if c.cfg.CollectionPrefix == "" {
		return name
	}
	return c.cfg.CollectionPrefix + "_" + name
}

func (c *Client) Dimension() int {
	if c.cfg.Dimension > 0 {
		return c.cfg.Dimension
	}
	return DefaultDimension
}

// hnswBuildParams 建索引参数 M 与 efConstruction
func (c *Client) hnswBuildParams() (int, int) {
	m, ef := c.cfg.HNSWM, c.cfg.HNSWEfConstruction
	if m <= 0 {
		m = defaultHNSWM
	}
	if ef <= 0 {
		ef = defaultHNSWEfConstruction
	}
	return m, ef
}

// searchEf HNSW 要求 ef 不小于 topK
func (c *Client) searchEf(topK int) int {
	ef := c.cfg.SearchEf
	if ef <= 0 {
		ef = defaultSearchEf
	}
	return max(ef, topK)
}

func (c *Client) hasCollection(ctx context.Context, name string) (bool, error) {
	ctx, span := tracer.Start(ctx, "milvus.HasCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.HasCollection(ctx, c.CollectionName(name))
}

func (c *Client) loadCollection(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "milvus.LoadCollection",
		trace.WithAttributes(attribute.String("collection", name)))
	defer span.End()

	return c.milvus.LoadCollection(ctx, c.CollectionName(name), false)
}
