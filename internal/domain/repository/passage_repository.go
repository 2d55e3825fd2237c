// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"legal-rag-api/internal/domain/entity"
)

// ScoredPassage 带原始得分的段落
type ScoredPassage struct {
	Passage *entity.LegalPassage
	Score   float64
}

// MetadataFilter 元数据过滤条件，空字段不参与过滤
type MetadataFilter struct {
	Jurisdictions []string
	ActNames      []string
	Sections      []string
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

// IsEmpty 是否没有任何条件
func (f MetadataFilter) IsEmpty() bool {
	return len(f.Jurisdictions) == 0 && len(f.ActNames) == 0 && len(f.Sections) == 0 &&
		f.EffectiveFrom == nil && f.EffectiveTo == nil
}

// PassageRepository 法律段落仓储接口
type PassageRepository interface {
	// Upsert 批量写入段落
	Upsert(ctx context.Context, passages []*entity.LegalPassage) error

	// DeleteByDocument 删除文档的全部段落
	DeleteByDocument(ctx context.Context, documentID string) error

	// GetByIDs 根据 ID 批量获取
	GetByIDs(ctx context.Context, ids []string) ([]*entity.LegalPassage, error)

	// KeywordSearch 全文检索，按 ts_rank_cd 降序
	KeywordSearch(ctx context.Context, query string, limit int) ([]ScoredPassage, error)

	// MetadataSearch 元数据过滤
	MetadataSearch(ctx context.Context, filter MetadataFilter, limit int) ([]*entity.LegalPassage, error)
}
