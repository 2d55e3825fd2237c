package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/pkg/retry"
)

func newTestConsumer() *Consumer {
	return NewConsumer(nil, ConsumerConfig{Stream: StreamPassageIngest, Group: ConsumerGroupIndexer})
}

func TestConsumerDispatchOutcomes(t *testing.T) {
	c := newTestConsumer()
	c.RegisterHandler(TypePassageIngest, func(context.Context, *Message) error { return nil })
	c.RegisterHandler("flaky", func(context.Context, *Message) error { return errors.New("milvus timeout") })
	c.RegisterHandler("poison", func(context.Context, *Message) error { return retry.Permanent(errors.New("bad payload")) })

	ctx := context.Background()
	cases := map[string]outcome{
		TypePassageIngest: outcomeAcked,
		"flaky":           outcomeRetry,
		"poison":          outcomeDead,
		"unknown":         outcomeSkipped,
	}
	for msgType, want := range cases {
		got, _ := c.dispatch(ctx, &Message{ID: "m1", Type: msgType})
		assert.Equal(t, want, got, msgType)
	}
}

func TestDecodeMessage(t *testing.T) {
	msg, err := NewMessage("m1", TypePassageDelete, DeleteMessage{DocumentID: "doc-1"})
	require.NoError(t, err)
	msg.SetMetadata("document_id", "doc-1")
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	decoded, err := decode(redis.XMessage{ID: "1-0", Values: map[string]interface{}{"data": string(raw)}})
	require.NoError(t, err)
	assert.Equal(t, TypePassageDelete, decoded.Type)
	assert.Equal(t, "doc-1", decoded.GetMetadata("document_id"))

	var payload DeleteMessage
	require.NoError(t, decoded.UnmarshalPayload(&payload))
	assert.Equal(t, "doc-1", payload.DocumentID)

	_, err = decode(redis.XMessage{ID: "2-0", Values: map[string]interface{}{}})
	assert.Error(t, err)
	_, err = decode(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestBackoffAndGroupPrefix(t *testing.T) {
	b := BackoffConfig{Initial: 1, Max: 10, Multiplier: 2}
	assert.EqualValues(t, 1, b.CalculateBackoff(0))
	assert.EqualValues(t, 4, b.CalculateBackoff(2))
	assert.EqualValues(t, 10, b.CalculateBackoff(8))

	assert.Equal(t, ConsumerGroup("prod:cg-passage-indexer"), ConsumerGroupIndexer.WithPrefix("prod"))
	assert.Equal(t, ConsumerGroupIndexer, ConsumerGroupIndexer.WithPrefix(""))
	assert.Equal(t, "dlq:stream:legal:passage:ingest", StreamPassageIngest.DLQStream())
}
