package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/google/uuid"

	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/retry"
	"legal-rag-api/pkg/tracer"
)

const (
	defaultChunkSizeRunes    = 800
	defaultChunkOverlapRunes = 80
	defaultEmbeddingBatch    = 32
)

// Indexer 将法律文档切分、向量化并写入 PostgreSQL 与 Milvus
type Indexer struct {
	embedder embedding.Embedder
	vector   VectorRepository
	passages repository.PassageRepository

	embeddingBatchSize int
	chunkSizeRunes     int
	chunkOverlapRunes  int
}

func NewIndexer(embedder embedding.Embedder, vectorRepo VectorRepository, passages repository.PassageRepository, embeddingBatchSize, chunkRunes, chunkOverlap int) *Indexer {
	if embeddingBatchSize <= 0 {
		embeddingBatchSize = defaultEmbeddingBatch
	}
	if chunkRunes <= 0 {
		chunkRunes = defaultChunkSizeRunes
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkRunes {
		chunkOverlap = defaultChunkOverlapRunes
	}
	return &Indexer{
		embedder:           embedder,
		vector:             vectorRepo,
		passages:           passages,
		embeddingBatchSize: embeddingBatchSize,
		chunkSizeRunes:     chunkRunes,
		chunkOverlapRunes:  chunkOverlap,
	}
}

func (i *Indexer) vectorEnabled() bool {
	return i != nil && i.embedder != nil && i.vector != nil
}

// IndexDocument 重建一篇文档的全部段落，返回写入的段落数
func (i *Indexer) IndexDocument(ctx context.Context, doc entity.LegalDocument) (int, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Indexer.IndexDocument")
	defer span.End()

	doc.DocumentID = strings.TrimSpace(doc.DocumentID)
	if doc.DocumentID == "" {
		return 0, fmt.Errorf("document_id is required")
	}
	if i.passages == nil {
		return 0, fmt.Errorf("passage repository is not configured")
	}
	jurisdiction := strings.ToLower(strings.TrimSpace(doc.Jurisdiction))

	// 先删除旧段落，避免残留
	if err := i.passages.DeleteByDocument(ctx, doc.DocumentID); err != nil {
		return 0, err
	}
	if i.vectorEnabled() {
		if err := i.vector.EnsureCollection(ctx); err != nil {
			return 0, err
		}
		if err := i.vector.DeleteByDocument(ctx, doc.DocumentID); err != nil {
			return 0, err
		}
	}

	chunks := splitPassages(doc.Text, i.chunkSizeRunes, i.chunkOverlapRunes)
	if len(chunks) == 0 {
		return 0, nil
	}

	passages := make([]*entity.LegalPassage, 0, len(chunks))
	embedInputs := make([]string, 0, len(chunks))
	for idx, chunk := range chunks {
		p := &entity.LegalPassage{
			ID:           uuid.NewString(),
			DocumentID:   doc.DocumentID,
			ChunkIndex:   idx,
			Title:        strings.TrimSpace(doc.Title),
			Jurisdiction: jurisdiction,
			ActName:      strings.TrimSpace(doc.ActName),
			Section:      strings.TrimSpace(doc.Section),
			EffectiveAt:  doc.EffectiveAt,
			Tags:         doc.Tags,
			Text:         chunk,
		}
		passages = append(passages, p)

		embedText := chunk
		if p.Title != "" {
			embedText = "Title: " + p.Title + "\n" + embedText
		}
		embedInputs = append(embedInputs, embedText)
	}

	if err := i.passages.Upsert(ctx, passages); err != nil {
		return 0, err
	}

	if !i.vectorEnabled() {
		logger.Warn(ctx, "vector index disabled, passages stored for keyword search only",
			"document_id", doc.DocumentID,
		)
		return len(passages), nil
	}

	vectors, err := i.embedBatch(ctx, embedInputs)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(passages) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(passages))
	}

	rows := make([]*VectorPassage, 0, len(passages))
	for idx, p := range passages {
		rows = append(rows, &VectorPassage{
			ID:           p.ID,
			DocumentID:   p.DocumentID,
			Jurisdiction: p.Jurisdiction,
			ActName:      p.ActName,
			Title:        p.Title,
			TextContent:  p.Text,
			Vector:       vectors[idx],
		})
	}
	if err := i.vector.Insert(ctx, rows); err != nil {
		return 0, err
	}

	logger.Info(ctx, "document indexed",
		"document_id", doc.DocumentID,
		"passages", len(passages),
	)
	return len(passages), nil
}

// DeleteDocument 从两个存储中移除文档
func (i *Indexer) DeleteDocument(ctx context.Context, documentID string) error {
	if err := i.passages.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if i.vectorEnabled() {
		return i.vector.DeleteByDocument(ctx, documentID)
	}
	return nil
}

func (i *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if i == nil || i.embedder == nil {
		return nil, ErrVectorDisabled
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += i.embeddingBatchSize {
		end := start + i.embeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		v64, err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) ([][]float64, error) {
			return i.embedder.EmbedStrings(embedContext(ctx, "embed_passages"), batch)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch at %d: %w", start, err)
		}
		for _, vec := range v64 {
			out = append(out, toFloat32(vec))
		}
	}
	return out, nil
}
