package milvus

import (
	"context"

	"legal-rag-api/internal/application/retrieval"
)

// RetrievalVectorRepository 将 Repository 适配为检索层的向量端口
type RetrievalVectorRepository struct {
	repo *Repository
}

func NewRetrievalVectorRepository(repo *Repository) *RetrievalVectorRepository {
	return &RetrievalVectorRepository{repo: repo}
}

var _ retrieval.VectorRepository = (*RetrievalVectorRepository)(nil)

func (r *RetrievalVectorRepository) EnsureCollection(ctx context.Context) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.EnsureLegalPassagesCollection(ctx)
}

func (r *RetrievalVectorRepository) Search(ctx context.Context, params *retrieval.VectorSearchParams) ([]*retrieval.VectorSearchResult, error) {
	if r == nil || r.repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if params == nil {
		return nil, nil
	}

	out, err := r.repo.SearchPassages(ctx, &SearchParams{
		QueryVector:   params.QueryVector,
		TopK:          params.TopK,
		Jurisdictions: params.Jurisdictions,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*retrieval.VectorSearchResult, 0, len(out))
	for _, v := range out {
		if v == nil {
			continue
		}
		results = append(results, &retrieval.VectorSearchResult{
			PassageID:    v.ID,
			DocumentID:   v.DocumentID,
			Score:        v.Score,
			Jurisdiction: v.Jurisdiction,
			ActName:      v.ActName,
			Title:        v.Title,
			TextContent:  v.TextContent,
		})
	}
	return results, nil
}

func (r *RetrievalVectorRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	return r.repo.DeletePassagesByDocument(ctx, documentID)
}

func (r *RetrievalVectorRepository) Insert(ctx context.Context, passages []*retrieval.VectorPassage) error {
	if r == nil || r.repo == nil {
		return retrieval.ErrVectorDisabled
	}
	if len(passages) == 0 {
		return nil
	}

	out := make([]*LegalPassage, 0, len(passages))
	for _, p := range passages {
		if p == nil {
			continue
		}
		out = append(out, &LegalPassage{
			ID:           p.ID,
			Vector:       p.Vector,
			DocumentID:   p.DocumentID,
			Jurisdiction: p.Jurisdiction,
			ActName:      p.ActName,
			Title:        p.Title,
			TextContent:  p.TextContent,
		})
	}
	return r.repo.InsertPassages(ctx, out)
}
