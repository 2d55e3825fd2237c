// Package stream 实现流式编排：准入、单写者生产、分片缓冲、取消与断点续传
package stream

import (
	"context"
	"errors"
	"time"

	"legal-rag-api/internal/application/reasoning"
	"legal-rag-api/internal/application/retrieval"
	"legal-rag-api/internal/domain/entity"
)

var (
	// ErrCapacityExceeded 并发或排队超限
	ErrCapacityExceeded = errors.New("stream capacity exceeded")
	// ErrBufferClosed 分片缓冲区已写入终止分片
	ErrBufferClosed = errors.New("chunk buffer closed")
	// ErrInvalidInput 请求参数不合法
	ErrInvalidInput = errors.New("invalid stream input")
)

// ChunkBuffer 分片缓冲区
type ChunkBuffer interface {
	// Append 追加分片并分配序号；终止分片之后的追加返回 ErrBufferClosed
	Append(ctx context.Context, chunk entity.StreamChunk) (int64, error)
	// Read 读取 afterSeq 之后的分片，最多阻塞 block
	Read(ctx context.Context, requestID string, afterSeq int64, block time.Duration) ([]entity.StreamChunk, error)
}

// Control 跨实例的取消与订阅在线标记
type Control interface {
	// RequestCancel 设置取消标记
	RequestCancel(ctx context.Context, requestID string) error
	// IsCancelRequested 是否已请求取消
	IsCancelRequested(ctx context.Context, requestID string) (bool, error)
	// MarkAttached 刷新订阅在线标记
	MarkAttached(ctx context.Context, requestID string, ttl time.Duration) error
	// IsAttached 是否仍有订阅者在线（宽限期内）
	IsAttached(ctx context.Context, requestID string) (bool, error)
}

// Classifier 意图分类
type Classifier interface {
	Classify(ctx context.Context, q entity.Query) entity.RetrievalStrategy
}

// Retriever 混合检索
type Retriever interface {
	Retrieve(ctx context.Context, q entity.Query, strategy entity.RetrievalStrategy) (entity.EvidenceSet, *retrieval.Report, error)
}

// Reasoner 推理链
type Reasoner interface {
	Run(ctx context.Context, in reasoning.RunInput) (*reasoning.Result, error)
}

// TokenIssuer 流令牌签发
type TokenIssuer interface {
	GenerateStreamToken(requestID, userID string, ttl time.Duration) (string, time.Time, error)
}
