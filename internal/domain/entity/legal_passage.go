package entity

import (
	"time"

	"github.com/lib/pq"
)

// LegalPassage 法律文本段落，关键词与元数据通道的检索单元
type LegalPassage struct {
	ID           string         `json:"id" gorm:"type:varchar(64);primaryKey"`
	DocumentID   string         `json:"document_id" gorm:"type:varchar(128);not null;index"`
	ChunkIndex   int            `json:"chunk_index" gorm:"not null"`
	Title        string         `json:"title" gorm:"type:varchar(512)"`
	Jurisdiction string         `json:"jurisdiction" gorm:"type:varchar(64);index"`
	ActName      string         `json:"act_name" gorm:"type:varchar(256);index"`
	Section      string         `json:"section" gorm:"type:varchar(64)"`
	EffectiveAt  *time.Time     `json:"effective_at,omitempty"`
	Tags         pq.StringArray `json:"tags" gorm:"type:text[]"`
	Text         string         `json:"text" gorm:"type:text;not null"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (LegalPassage) TableName() string {
	return "legal_passages"
}

// MetadataTags 返回用于精确匹配的规范化标签
func (p *LegalPassage) MetadataTags() []string {
	tags := make([]string, 0, len(p.Tags)+2)
	if p.Jurisdiction != "" {
		tags = append(tags, "jurisdiction:"+p.Jurisdiction)
	}
	if p.ActName != "" {
		tags = append(tags, "act:"+p.ActName)
	}
	tags = append(tags, p.Tags...)
	return tags
}

// LegalDocument 待入库的完整法律文档
type LegalDocument struct {
	DocumentID   string     `json:"document_id"`
	Title        string     `json:"title"`
	Jurisdiction string     `json:"jurisdiction"`
	ActName      string     `json:"act_name"`
	Section      string     `json:"section"`
	EffectiveAt  *time.Time `json:"effective_at,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Text         string     `json:"text"`
}
