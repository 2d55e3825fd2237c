// Package entity 定义领域实体
package entity

import (
	"strings"
	"time"
)

// ContextTurn 对话上下文中的一轮
type ContextTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query 用户提交的法律问题，提交后不可变
type Query struct {
	RawText             string        `json:"raw_text"`
	ConversationID      string        `json:"conversation_id"`
	UserID              string        `json:"user_id"`
	ConversationContext []ContextTurn `json:"conversation_context,omitempty"`
	SubmittedAt         time.Time     `json:"submitted_at"`
}

// NewQuery 创建查询
func NewQuery(userID, conversationID, rawText string, turns []ContextTurn) Query {
	cp := make([]ContextTurn, len(turns))
	copy(cp, turns)
	return Query{
		RawText:             strings.TrimSpace(rawText),
		ConversationID:      conversationID,
		UserID:              userID,
		ConversationContext: cp,
		SubmittedAt:         time.Now(),
	}
}

// ContextText 将上下文拼接为纯文本，最多保留最近 maxTurns 轮
func (q Query) ContextText(maxTurns int) string {
	turns := q.ConversationContext
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(t.Content))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
