// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionLegalPassages 法律段落集合
	CollectionLegalPassages = "legal_passages"

	// DefaultDimension 默认向量维度
	DefaultDimension = 1024

	vectorField = "vector"
)

// LegalPassagesSchema 法律段落 Collection Schema
func LegalPassagesSchema(dim int) *entity.Schema {
	varchar := func(name string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:       name,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": strconv.Itoa(maxLen)},
		}
	}

	id := varchar("id", 64)
	id.PrimaryKey = true

	return &entity.Schema{
		CollectionName: CollectionLegalPassages,
		Description:    "Statute and case passages for semantic search",
		Fields: []*entity.Field{
			id,
			{
				Name:       vectorField,
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
			},
			varchar("document_id", 128),
			varchar("jurisdiction", 64),
			varchar("act_name", 256),
			varchar("title", 512),
			varchar("text_content", 65535),
		},
	}
}

// LegalPassage 向量集合中的段落
type LegalPassage struct {
	ID           string    `json:"id"`
	Vector       []float32 `json:"vector"`
	DocumentID   string    `json:"document_id"`
	Jurisdiction string    `json:"jurisdiction"`
	ActName      string    `json:"act_name"`
	Title        string    `json:"title"`
	TextContent  string    `json:"text_content"`
}
