package retrieval

import "errors"

var (
	// ErrVectorDisabled 语义通道未启用（Milvus 或 Embedder 不可用）
	ErrVectorDisabled = errors.New("vector retrieval is disabled")
	// ErrRetrievalUnavailable 所选通道全部失败
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrEmptyQuery 问题为空
	ErrEmptyQuery = errors.New("query is empty")
)
