// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm/clause"

	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
)

const passageColumns = "id, document_id, chunk_index, title, jurisdiction, act_name, section, effective_at, tags, text, created_at, updated_at"

// PassageRepository 法律段落仓储实现
type PassageRepository struct {
	client *Client
}

// NewPassageRepository 创建段落仓储
func NewPassageRepository(client *Client) *PassageRepository {
	return &PassageRepository{client: client}
}

// Upsert 批量写入段落
func (r *PassageRepository) Upsert(ctx context.Context, passages []*entity.LegalPassage) error {
	ctx, span := tracer.Start(ctx, "postgres.PassageRepository.Upsert")
	defer span.End()

	if len(passages) == 0 {
		return nil
	}
	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "jurisdiction", "act_name", "section", "effective_at", "tags", "text", "updated_at"}),
	}).CreateInBatches(passages, 100).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert passages: %w", err)
	}
	return nil
}

// DeleteByDocument 删除文档的全部段落
func (r *PassageRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	ctx, span := tracer.Start(ctx, "postgres.PassageRepository.DeleteByDocument")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("document_id = ?", documentID).Delete(&entity.LegalPassage{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	return nil
}

// GetByIDs 根据 ID 批量获取
func (r *PassageRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.LegalPassage, error) {
	ctx, span := tracer.Start(ctx, "postgres.PassageRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	db := getDB(ctx, r.client.db)
	var passages []*entity.LegalPassage
	if err := db.Select(passageColumns).Where("id IN ?", ids).Find(&passages).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get passages: %w", err)
	}
	return passages, nil
}

type keywordRow struct {
	entity.LegalPassage `gorm:"embedded"`
	Score               float64
}

// KeywordSearch 全文检索（ts_rank_cd）
func (r *PassageRepository) KeywordSearch(ctx context.Context, query string, limit int) ([]repository.ScoredPassage, error) {
	ctx, span := tracer.Start(ctx, "postgres.PassageRepository.KeywordSearch")
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	sql := `SELECT ` + passageColumns + `, ts_rank_cd(search_vector, q) AS score
		FROM legal_passages, websearch_to_tsquery(?::regconfig, ?) q
		WHERE search_vector @@ q
		ORDER BY score DESC, document_id ASC, chunk_index ASC
		LIMIT ?`

	db := getDB(ctx, r.client.db)
	var rows []keywordRow
	if err := db.Raw(sql, r.client.textSearchConfig(), query, limit).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}

	out := make([]repository.ScoredPassage, 0, len(rows))
	for i := range rows {
		p := rows[i].LegalPassage
		out = append(out, repository.ScoredPassage{Passage: &p, Score: rows[i].Score})
	}
	return out, nil
}

// MetadataSearch 元数据过滤（jurisdiction/act/section/生效日期）
func (r *PassageRepository) MetadataSearch(ctx context.Context, filter repository.MetadataFilter, limit int) ([]*entity.LegalPassage, error) {
	ctx, span := tracer.Start(ctx, "postgres.PassageRepository.MetadataSearch")
	defer span.End()

	if filter.IsEmpty() {
		return nil, nil
	}

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.LegalPassage{}).Select(passageColumns)
	if len(filter.Jurisdictions) > 0 {
		query = query.Where("lower(jurisdiction) = ANY(?)", pq.Array(lowerAll(filter.Jurisdictions)))
	}
	if len(filter.ActNames) > 0 {
		query = query.Where("lower(act_name) = ANY(?)", pq.Array(lowerAll(filter.ActNames)))
	}
	if len(filter.Sections) > 0 {
		query = query.Where("section = ANY(?)", pq.Array(filter.Sections))
	}
	if filter.EffectiveFrom != nil {
		query = query.Where("effective_at >= ?", *filter.EffectiveFrom)
	}
	if filter.EffectiveTo != nil {
		query = query.Where("effective_at <= ?", *filter.EffectiveTo)
	}

	var passages []*entity.LegalPassage
	if err := query.Order("document_id ASC, chunk_index ASC").Limit(limit).Find(&passages).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to run metadata search: %w", err)
	}
	return passages, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
