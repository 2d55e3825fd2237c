package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"legal-rag-api/internal/application/registry"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client redis.UniversalClient
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client redis.UniversalClient, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

var _ registry.EventPublisher = (*Producer)(nil)

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if traceID := span.SpanContext().TraceID(); traceID.IsValid() {
		msg.SetMetadata(MetaTraceID, traceID.String())
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishSessionEvent 发布会话生命周期事件（session.completed 等）
func (p *Producer) PublishSessionEvent(ctx context.Context, event *registry.SessionEvent) error {
	msg, err := NewMessage(uuid.NewString(), event.Type, event)
	if err != nil {
		return err
	}
	msg.SetMetadata(MetaRequestID, event.RequestID)
	msg.SetMetadata(MetaUserID, event.UserID)

	_, err = p.Publish(ctx, StreamSessionEvents, msg)
	return err
}

// PublishIngest 发布法规文本入库任务
func (p *Producer) PublishIngest(ctx context.Context, doc *IngestMessage) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypePassageIngest, doc)
	if err != nil {
		return "", err
	}
	msg.SetMetadata(MetaDocumentID, doc.DocumentID)
	return p.Publish(ctx, StreamPassageIngest, msg)
}

// PublishDelete 发布法规删除任务
func (p *Producer) PublishDelete(ctx context.Context, documentID string) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypePassageDelete, &DeleteMessage{DocumentID: documentID})
	if err != nil {
		return "", err
	}
	msg.SetMetadata(MetaDocumentID, documentID)
	return p.Publish(ctx, StreamPassageIngest, msg)
}
