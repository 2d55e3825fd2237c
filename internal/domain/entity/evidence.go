package entity

import (
	"time"

	"github.com/lib/pq"
)

// EvidenceItem 融合后的证据条目
type EvidenceItem struct {
	ID             uint64         `json:"-" gorm:"primaryKey;autoIncrement"`
	RequestID      string         `json:"-" gorm:"type:varchar(64);not null;index:idx_evidence_request_rank,priority:1"`
	Rank           int            `json:"rank" gorm:"not null;index:idx_evidence_request_rank,priority:2"`
	DocumentID     string         `json:"document_id" gorm:"type:varchar(128);not null"`
	PassageID      string         `json:"passage_id,omitempty" gorm:"type:varchar(64)"`
	Title          string         `json:"title,omitempty" gorm:"type:varchar(512)"`
	PassageText    string         `json:"passage_text" gorm:"type:text;not null"`
	SemanticScore  float64        `json:"semantic_score"`
	KeywordScore   float64        `json:"keyword_score"`
	MetadataMatch  bool           `json:"metadata_match"`
	MetadataTags   pq.StringArray `json:"metadata_tags" gorm:"type:text[]"`
	FusedScore     float64        `json:"fused_score"`
	SourceChannels pq.StringArray `json:"source_channels" gorm:"type:text[]"`
	CreatedAt      time.Time      `json:"-" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (EvidenceItem) TableName() string {
	return "evidence_items"
}

// EvidenceSet 按 rank 排序的证据集合
type EvidenceSet []EvidenceItem

// DocumentIDs 返回全部 document_id，保持排名顺序
func (s EvidenceSet) DocumentIDs() []string {
	ids := make([]string, 0, len(s))
	for _, it := range s {
		ids = append(ids, it.DocumentID)
	}
	return ids
}

// Contains 是否包含指定文档
func (s EvidenceSet) Contains(documentID string) bool {
	for _, it := range s {
		if it.DocumentID == documentID {
			return true
		}
	}
	return false
}

// Get 按文档 ID 查找
func (s EvidenceSet) Get(documentID string) (EvidenceItem, bool) {
	for _, it := range s {
		if it.DocumentID == documentID {
			return it, true
		}
	}
	return EvidenceItem{}, false
}
