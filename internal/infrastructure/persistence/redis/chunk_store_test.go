package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
)

func TestDecodeChunk(t *testing.T) {
	chunk, err := decodeChunk("req-1", redis.XMessage{
		ID: "42-1",
		Values: map[string]interface{}{
			"kind":    "complete",
			"payload": `{"status":"completed"}`,
			"final":   "1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), chunk.SequenceNo)
	assert.Equal(t, entity.ChunkComplete, chunk.Kind)
	assert.True(t, chunk.IsFinal)
	assert.JSONEq(t, `{"status":"completed"}`, string(chunk.Payload))

	_, err = decodeChunk("req-1", redis.XMessage{ID: "bad"})
	assert.Error(t, err)
}

func TestChunkStoreKeysShareHashTag(t *testing.T) {
	s := NewChunkStore(&Client{config: &config.RedisConfig{KeyPrefix: "legal"}}, &config.StreamConfig{})
	keys := s.keys("abc")
	assert.Equal(t, []string{
		"legal:stream:{abc}:chunks",
		"legal:stream:{abc}:seq",
		"legal:stream:{abc}:final",
	}, keys)
}
