// Package messaging 提供基于 Redis Stream 的消息发布与消费
package messaging

import (
	"encoding/json"
	"math"
	"time"
)

// Stream Redis Stream 名称
type Stream string

const (
	// StreamSessionEvents 会话终态事件，供会话持久化与分析消费
	StreamSessionEvents Stream = "stream:legal:session:events"
	// StreamPassageIngest 法规入库与删除任务
	StreamPassageIngest Stream = "stream:legal:passage:ingest"
)

// DLQStream 对应的死信流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// 消息类型
const (
	TypePassageIngest = "passage_ingest"
	TypePassageDelete = "passage_delete"
)

// 元数据键，消费端据此恢复日志上下文
const (
	MetaRequestID  = "request_id"
	MetaUserID     = "user_id"
	MetaTraceID    = "trace_id"
	MetaDocumentID = "document_id"
)

// Message 写入 Stream 的信封，载荷按 Type 解析
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewMessage(id, msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (m *Message) SetMetadata(key, value string) {
	if value == "" {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]string, 4)
	}
	m.Metadata[key] = value
}

// GetMetadata 读取 nil map 也安全
func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// IngestMessage 法规文本入库载荷
type IngestMessage struct {
	DocumentID   string     `json:"document_id"`
	Title        string     `json:"title"`
	Jurisdiction string     `json:"jurisdiction"`
	ActName      string     `json:"act_name,omitempty"`
	Section      string     `json:"section,omitempty"`
	EffectiveAt  *time.Time `json:"effective_at,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Text         string     `json:"text"`
}

// DeleteMessage 法规删除载荷
type DeleteMessage struct {
	DocumentID string `json:"document_id"`
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

// ConsumerGroupIndexer job-worker 的入库消费者组
const ConsumerGroupIndexer ConsumerGroup = "cg-passage-indexer"

// WithPrefix 按配置的前缀区分部署环境
func (g ConsumerGroup) WithPrefix(prefix string) ConsumerGroup {
	if prefix == "" {
		return g
	}
	return ConsumerGroup(prefix + ":" + string(g))
}

// BackoffConfig 失败消息重新投递前的等待
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 第 retryCount 次重试前的等待，Initial*Multiplier^n 封顶 Max
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	if retryCount <= 0 || c.Multiplier <= 1 {
		return min(c.Initial, c.Max)
	}
	wait := float64(c.Initial) * math.Pow(c.Multiplier, float64(retryCount))
	if wait >= float64(c.Max) {
		return c.Max
	}
	return time.Duration(wait)
}
