package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
)

type fakeEmbedder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeVector struct {
	mu       sync.Mutex
	results  []*VectorSearchResult
	err      error
	lastScan *VectorSearchParams
	inserted []*VectorPassage
}

func (f *fakeVector) EnsureCollection(context.Context) error { return nil }

func (f *fakeVector) Search(_ context.Context, p *VectorSearchParams) ([]*VectorSearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastScan = p
	return f.results, f.err
}

func (f *fakeVector) DeleteByDocument(context.Context, string) error { return nil }

func (f *fakeVector) Insert(_ context.Context, rows []*VectorPassage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, rows...)
	return nil
}

type fakePassages struct {
	keyword    []repository.ScoredPassage
	keywordErr error
	metadata   []*entity.LegalPassage
	metaErr    error
	upserted   []*entity.LegalPassage
	deleted    []string
}

func (f *fakePassages) Upsert(_ context.Context, ps []*entity.LegalPassage) error {
	f.upserted = append(f.upserted, ps...)
	return nil
}

func (f *fakePassages) DeleteByDocument(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePassages) GetByIDs(context.Context, []string) ([]*entity.LegalPassage, error) {
	return nil, nil
}

func (f *fakePassages) KeywordSearch(context.Context, string, int) ([]repository.ScoredPassage, error) {
	return f.keyword, f.keywordErr
}

func (f *fakePassages) MetadataSearch(context.Context, repository.MetadataFilter, int) ([]*entity.LegalPassage, error) {
	return f.metadata, f.metaErr
}

func testRetrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Weights:        defaultWeights,
		TopK:           5,
		ChannelTopN:    10,
		ChannelTimeout: time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 2,
			Backoff:     config.BackoffConfig{Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2},
		},
	}
}

func newTestEngine(emb *fakeEmbedder, vec *fakeVector, ps *fakePassages) *Engine {
	return NewEngine(emb, vec, ps, testRetrievalConfig())
}

func texasPassage(id, doc string) *entity.LegalPassage {
	return &entity.LegalPassage{ID: id, DocumentID: doc, Title: doc, Jurisdiction: "texas", Text: "text of " + id}
}

func TestRetrieve_HybridFusesAllChannels(t *testing.T) {
	vec := &fakeVector{results: []*VectorSearchResult{
		{PassageID: "p1", DocumentID: "doc-1", Score: 0.92, TextContent: "semantic one"},
		{PassageID: "p2", DocumentID: "doc-2", Score: 0.41, TextContent: "semantic two"},
	}}
	ps := &fakePassages{
		keyword:  []repository.ScoredPassage{{Passage: texasPassage("p3", "doc-3"), Score: 0.7}},
		metadata: []*entity.LegalPassage{texasPassage("p3", "doc-3")},
	}
	e := newTestEngine(&fakeEmbedder{}, vec, ps)

	q := entity.NewQuery("u1", "c1", "Is a verbal lease binding in Texas?", nil)
	set, report, err := e.Retrieve(context.Background(), q, entity.StrategyHybrid)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.False(t, report.PartialEvidence)
	assert.Len(t, report.Channels, 3)
	assert.Equal(t, []string{"texas"}, report.Filter.Jurisdictions)
	assert.Nil(t, vec.lastScan.Jurisdictions, "hybrid does not hard-scope the semantic channel")

	// doc-1: 0.6*1; doc-3: 0.3*1 + 0.1; doc-2: 0
	require.Len(t, set, 3)
	assert.Equal(t, []string{"doc-1", "doc-3", "doc-2"}, set.DocumentIDs())
	assert.True(t, set[1].MetadataMatch)
	assert.InDelta(t, 0.4, set[1].FusedScore, 1e-9)
	for i, it := range set {
		assert.Equal(t, i+1, it.Rank)
	}
}

func TestRetrieve_MetadataScopedFiltersSemantic(t *testing.T) {
	vec := &fakeVector{results: []*VectorSearchResult{
		{PassageID: "p1", DocumentID: "doc-1", Score: 0.9, Jurisdiction: "california"},
	}}
	e := newTestEngine(&fakeEmbedder{}, vec, &fakePassages{})

	q := entity.NewQuery("u1", "", "Non-compete rules in California", nil)
	set, report, err := e.Retrieve(context.Background(), q, entity.StrategyMetadataScoped)
	require.NoError(t, err)
	assert.Equal(t, []string{"california"}, vec.lastScan.Jurisdictions)
	require.Len(t, set, 1)
	assert.True(t, set[0].MetadataMatch)
	assert.Equal(t, entity.StrategyMetadataScoped, report.Strategy)
}

func TestRetrieve_PartialEvidence(t *testing.T) {
	vec := &fakeVector{err: errors.New("milvus down")}
	ps := &fakePassages{keyword: []repository.ScoredPassage{{Passage: texasPassage("p3", "doc-3"), Score: 0.2}}}
	e := newTestEngine(&fakeEmbedder{}, vec, ps)

	set, report, err := e.Retrieve(context.Background(), entity.NewQuery("u", "", "adverse possession", nil), entity.StrategyHybrid)
	require.NoError(t, err)
	assert.True(t, report.PartialEvidence)
	assert.Equal(t, []string{"doc-3"}, set.DocumentIDs())

	var failed []entity.Channel
	for _, c := range report.Channels {
		if c.Failed {
			failed = append(failed, c.Channel)
		}
	}
	assert.Equal(t, []entity.Channel{entity.ChannelSemantic}, failed)
}

func TestRetrieve_AllChannelsFail(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("embedding provider unreachable")}
	ps := &fakePassages{keywordErr: errors.New("postgres down")}
	e := newTestEngine(emb, &fakeVector{}, ps)

	_, report, err := e.Retrieve(context.Background(), entity.NewQuery("u", "", "adverse possession", nil), entity.StrategyHybrid)
	// 无元数据条件时 metadata 通道为空但成功，因此用 keyword_only 验证全部失败
	require.NoError(t, err)
	assert.True(t, report.PartialEvidence)

	_, _, err = e.Retrieve(context.Background(), entity.NewQuery("u", "", "adverse possession", nil), entity.StrategyKeywordOnly)
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestRetrieve_RetriesTransientErrors(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("timeout")}
	e := newTestEngine(emb, &fakeVector{}, &fakePassages{})

	_, _, err := e.Retrieve(context.Background(), entity.NewQuery("u", "", "what is estoppel", nil), entity.StrategySemanticOnly)
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
	assert.Equal(t, 2, emb.calls)
}

func TestRetrieve_EmptyQuery(t *testing.T) {
	e := newTestEngine(&fakeEmbedder{}, &fakeVector{}, &fakePassages{})
	_, _, err := e.Retrieve(context.Background(), entity.NewQuery("u", "", "   ", nil), entity.StrategyHybrid)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestIndexer_IndexDocument(t *testing.T) {
	vec := &fakeVector{}
	ps := &fakePassages{}
	idx := NewIndexer(&fakeEmbedder{}, vec, ps, 2, 10, 2)

	n, err := idx.IndexDocument(context.Background(), entity.LegalDocument{
		DocumentID:   "tx-prop-16",
		Title:        "Texas Property Code 16",
		Jurisdiction: "Texas",
		Text:         "abcdefghijklmnopqrstuvwxyz",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"tx-prop-16"}, ps.deleted)
	require.Len(t, ps.upserted, 3)
	require.Len(t, vec.inserted, 3)
	for i, p := range ps.upserted {
		assert.Equal(t, i, p.ChunkIndex)
		assert.Equal(t, "texas", p.Jurisdiction)
		assert.Equal(t, p.ID, vec.inserted[i].ID)
	}
}
