package dto

// IngestDocumentRequest 法规文本入库请求
type IngestDocumentRequest struct {
	DocumentID   string   `json:"document_id" binding:"required,max=128"`
	Title        string   `json:"title" binding:"required,max=512"`
	Jurisdiction string   `json:"jurisdiction" binding:"required,max=64"`
	ActName      string   `json:"act_name,omitempty" binding:"max=256"`
	Section      string   `json:"section,omitempty" binding:"max=64"`
	EffectiveAt  string   `json:"effective_at,omitempty"`
	Tags         []string `json:"tags,omitempty" binding:"max=32"`
	Text         string   `json:"text" binding:"required"`
}

// IngestDocumentResponse 入库受理响应
type IngestDocumentResponse struct {
	DocumentID string `json:"document_id"`
	MessageID  string `json:"message_id"`
}
