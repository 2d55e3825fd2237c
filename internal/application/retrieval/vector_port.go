package retrieval

import "context"

// VectorRepository 定义应用层对“向量存储/检索”的最小依赖（port）。
// 由基础设施层提供具体实现（例如 Milvus）。
type VectorRepository interface {
	EnsureCollection(ctx context.Context) error
	Search(ctx context.Context, params *VectorSearchParams) ([]*VectorSearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Insert(ctx context.Context, passages []*VectorPassage) error
}

type VectorSearchParams struct {
	QueryVector []float32
	TopK        int
	// Jurisdictions 非空时作为硬过滤条件
	Jurisdictions []string
}

// VectorSearchResult Score 为余弦相似度，越大越相近
type VectorSearchResult struct {
	PassageID    string
	DocumentID   string
	Score        float32
	Jurisdiction string
	ActName      string
	Title        string
	TextContent  string
}

type VectorPassage struct {
	ID           string
	DocumentID   string
	Jurisdiction string
	ActName      string
	Title        string
	TextContent  string
	Vector       []float32
}
