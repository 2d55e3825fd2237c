package embedding

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
	"legal-rag-api/pkg/retry"
)

type fixedEmbedder struct {
	vecs [][]float64
}

func (f *fixedEmbedder) EmbedStrings(context.Context, []string, ...embedding.Option) ([][]float64, error) {
	return f.vecs, nil
}

func TestNewEmbedderRequiresEndpointAndModel(t *testing.T) {
	_, err := NewEmbedder(context.Background(), &config.EmbeddingConfig{Model: "m"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewEmbedder(context.Background(), &config.EmbeddingConfig{Endpoint: "http://localhost:1"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDimensionChecked(t *testing.T) {
	ctx := context.Background()

	ok := &dimensionChecked{inner: &fixedEmbedder{vecs: [][]float64{{1, 2, 3}}}, dim: 3}
	vecs, err := ok.EmbedStrings(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Len(t, vecs[0], 3)

	wrongDim := &dimensionChecked{inner: &fixedEmbedder{vecs: [][]float64{{1, 2}}}, dim: 3}
	_, err = wrongDim.EmbedStrings(ctx, []string{"a"})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))

	wrongCount := &dimensionChecked{inner: &fixedEmbedder{vecs: [][]float64{{1, 2, 3}}}, dim: 3}
	_, err = wrongCount.EmbedStrings(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
}
