// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"legal-rag-api/pkg/metrics"
)

// Repository 向量检索仓储
type Repository struct {
	client *Client
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// SearchParams 检索参数
type SearchParams struct {
	QueryVector   []float32
	TopK          int
	Jurisdictions []string
}

// SearchResult 检索结果，Score 为余弦相似度
type SearchResult struct {
	ID           string
	Score        float32
	DocumentID   string
	Jurisdiction string
	ActName      string
	Title        string
	TextContent  string
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)

	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	m, efConstruction := r.client.hnswBuildParams()
	idx, err := entity.NewIndexHNSW(entity.COSINE, m, efConstruction)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), vectorField, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// EnsureLegalPassagesCollection 确保 legal_passages 集合与索引可用，不做破坏性操作
func (r *Repository) EnsureLegalPassagesCollection(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}

	exists, err := r.client.hasCollection(ctx, CollectionLegalPassages)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, LegalPassagesSchema(r.client.Dimension())); err != nil {
			return err
		}
		if err := r.CreateIndex(ctx, CollectionLegalPassages); err != nil {
			return err
		}
	}

	return r.client.loadCollection(ctx, CollectionLegalPassages)
}

// SearchPassages 语义检索法律段落
func (r *Repository) SearchPassages(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchPassages",
		trace.WithAttributes(attribute.Int("top_k", params.TopK)))
	defer span.End()

	collName := r.client.CollectionName(CollectionLegalPassages)

	sp, err := entity.NewIndexHNSWSearchParam(r.client.searchEf(params.TopK))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		jurisdictionFilter(params.Jurisdictions),
		[]string{"id", "document_id", "jurisdiction", "act_name", "title", "text_content"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		vectorField,
		entity.COSINE,
		params.TopK,
		sp,
	)
	metrics.MilvusSearchDuration.WithLabelValues(CollectionLegalPassages).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(CollectionLegalPassages, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(CollectionLegalPassages, "success").Inc()

	var out []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{Score: result.Scores[i]}
			sr.ID = varcharAt(result.Fields, "id", i)
			sr.DocumentID = varcharAt(result.Fields, "document_id", i)
			sr.Jurisdiction = varcharAt(result.Fields, "jurisdiction", i)
			sr.ActName = varcharAt(result.Fields, "act_name", i)
			sr.Title = varcharAt(result.Fields, "title", i)
			sr.TextContent = varcharAt(result.Fields, "text_content", i)
			out = append(out, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

func varcharAt(cols client.ResultSet, name string, i int) string {
	col, ok := cols.GetColumn(name).(*entity.ColumnVarChar)
	if !ok || i >= col.Len() {
		return ""
	}
	return col.Data()[i]
}

func jurisdictionFilter(values []string) string {
	var parts []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		parts = append(parts, "jurisdiction == "+strconv.Quote(v))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " || ")
}

// InsertPassages 插入段落向量
func (r *Repository) InsertPassages(ctx context.Context, passages []*LegalPassage) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertPassages",
		trace.WithAttributes(attribute.Int("count", len(passages))))
	defer span.End()

	if len(passages) == 0 {
		return nil
	}

	n := len(passages)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	docIDs := make([]string, n)
	jurisdictions := make([]string, n)
	acts := make([]string, n)
	titles := make([]string, n)
	texts := make([]string, n)

	for i, p := range passages {
		ids[i] = p.ID
		vectors[i] = p.Vector
		docIDs[i] = p.DocumentID
		jurisdictions[i] = p.Jurisdiction
		acts[i] = p.ActName
		titles[i] = p.Title
		texts[i] = p.TextContent
	}

	_, err := r.client.milvus.Upsert(ctx, r.client.CollectionName(CollectionLegalPassages), "",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(vectorField, r.client.Dimension(), vectors),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnVarChar("jurisdiction", jurisdictions),
		entity.NewColumnVarChar("act_name", acts),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("text_content", texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert passages: %w", err)
	}
	return nil
}

// DeletePassagesByDocument 删除文档的全部段落向量
func (r *Repository) DeletePassagesByDocument(ctx context.Context, documentID string) error {
	if err := r.ready(); err != nil {
		return err
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "milvus.DeletePassagesByDocument",
		trace.WithAttributes(attribute.String("document_id", documentID)))
	defer span.End()

	filter := "document_id == " + strconv.Quote(documentID)
	if err := r.client.milvus.Delete(ctx, r.client.CollectionName(CollectionLegalPassages), "", filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	return nil
}
