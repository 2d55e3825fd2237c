package retrieval

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
)

var defaultWeights = config.FusionWeights{Semantic: 0.6, Keyword: 0.3, MetadataBoost: 0.1}

func sampleResults() []ChannelResult {
	return []ChannelResult{
		{Channel: entity.ChannelSemantic, Candidates: []Candidate{
			{DocumentID: "doc-a", PassageID: "a1", Text: "semantic a1", Score: 0.9},
			{DocumentID: "doc-b", PassageID: "b1", Text: "semantic b1", Score: 0.5},
			{DocumentID: "doc-c", PassageID: "c1", Text: "semantic c1", Score: 0.7},
		}},
		{Channel: entity.ChannelKeyword, Candidates: []Candidate{
			{DocumentID: "doc-b", PassageID: "b1", Text: "keyword b1", Score: 4.0},
			{DocumentID: "doc-d", PassageID: "d1", Text: "keyword d1", Score: 2.0},
		}},
		{Channel: entity.ChannelMetadata, Candidates: []Candidate{
			{DocumentID: "doc-d", PassageID: "d1", Text: "metadata d1", Score: 1, Tags: []string{"jurisdiction:texas"}},
		}},
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{1.0}, normalize([]Candidate{{Score: 0.3}}))
	assert.Equal(t, []float64{1.0, 1.0}, normalize([]Candidate{{Score: 2}, {Score: 2}}))
	assert.Equal(t, []float64{1.0, 0.0, 0.5}, normalize([]Candidate{{Score: 10}, {Score: 0}, {Score: 5}}))
	assert.Empty(t, normalize(nil))
}

func TestFuse_Deterministic(t *testing.T) {
	first := Fuse(sampleResults(), defaultWeights, 10)
	for i := 0; i < 20; i++ {
		again := Fuse(sampleResults(), defaultWeights, 10)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("fusion is not deterministic (-first +again):\n%s", diff)
		}
	}
}

func TestFuse_ScoresAndRanks(t *testing.T) {
	set := Fuse(sampleResults(), defaultWeights, 10)
	require.Len(t, set, 4)

	got := make([]string, 0, len(set))
	for i, it := range set {
		assert.Equal(t, i+1, it.Rank)
		got = append(got, it.DocumentID)
	}
	// doc-b: 0.6*0 + 0.3*1 = 0.3; doc-a: 0.6*1 = 0.6; doc-c: 0.6*0.5 = 0.3; doc-d: 0.3*0 + 0.1 = 0.1
	assert.Equal(t, []string{"doc-a", "doc-b", "doc-c", "doc-d"}, got)

	b, ok := set.Get("doc-b")
	require.True(t, ok)
	assert.InDelta(t, 0.3, b.FusedScore, 1e-9)
	assert.Equal(t, "semantic b1", b.PassageText, "text comes from the first channel in fixed order")
	assert.ElementsMatch(t, []string{"semantic", "keyword"}, []string(b.SourceChannels))

	d, ok := set.Get("doc-d")
	require.True(t, ok)
	assert.True(t, d.MetadataMatch)
	assert.InDelta(t, 0.1, d.FusedScore, 1e-9)
	assert.Equal(t, "keyword d1", d.PassageText)
	assert.Contains(t, []string(d.MetadataTags), "jurisdiction:texas")
}

func TestFuse_TiesBreakByDocumentID(t *testing.T) {
	results := []ChannelResult{
		{Channel: entity.ChannelSemantic, Candidates: []Candidate{
			{DocumentID: "zeta", PassageID: "z", Score: 0.8},
			{DocumentID: "alpha", PassageID: "a", Score: 0.8},
			{DocumentID: "mid", PassageID: "m", Score: 0.8},
		}},
	}
	set := Fuse(results, defaultWeights, 0)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, set.DocumentIDs())
}

func TestFuse_DedupKeepsHighestPassage(t *testing.T) {
	results := []ChannelResult{
		{Channel: entity.ChannelSemantic, Candidates: []Candidate{
			{DocumentID: "doc-a", PassageID: "a1", Text: "low", Score: 0.2},
			{DocumentID: "doc-a", PassageID: "a2", Text: "high", Score: 0.9},
			{DocumentID: "doc-b", PassageID: "b1", Text: "b", Score: 0.5},
		}},
		{Channel: entity.ChannelKeyword, Candidates: []Candidate{
			{DocumentID: "doc-a", PassageID: "a2", Text: "kw high", Score: 3},
		}},
	}
	set := Fuse(results, defaultWeights, 10)
	require.Len(t, set, 2)

	a, ok := set.Get("doc-a")
	require.True(t, ok)
	assert.Equal(t, "a2", a.PassageID)
	assert.Equal(t, "high", a.PassageText)
	// 0.6*1 + 0.3*1, combined once
	assert.InDelta(t, 0.9, a.FusedScore, 1e-9)
}

func TestFuse_TopKAppliedAfterSort(t *testing.T) {
	set := Fuse(sampleResults(), defaultWeights, 2)
	want := entity.EvidenceSet{
		{Rank: 1, DocumentID: "doc-a"},
		{Rank: 2, DocumentID: "doc-b"},
	}
	opts := cmpopts.IgnoreFields(entity.EvidenceItem{},
		"PassageID", "Title", "PassageText", "SemanticScore", "KeywordScore",
		"MetadataMatch", "MetadataTags", "FusedScore", "SourceChannels")
	if diff := cmp.Diff(want, set, opts); diff != "" {
		t.Fatalf("unexpected top-k (-want +got):\n%s", diff)
	}
}

func TestFuse_SkipsFailedChannels(t *testing.T) {
	results := sampleResults()
	results[0].Err = assert.AnError
	set := Fuse(results, defaultWeights, 10)
	assert.False(t, set.Contains("doc-a"))
	assert.True(t, set.Contains("doc-b"))
}
