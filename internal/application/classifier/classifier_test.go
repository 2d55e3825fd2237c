package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
)

func TestRuleClassifier(t *testing.T) {
	cases := []struct {
		question string
		want     entity.RetrievalStrategy
	}{
		{"What does section 230 of the Communications Decency Act provide?", entity.StrategyKeywordOnly},
		{"Summarize Marbury v. Madison", entity.StrategyKeywordOnly},
		{"Is a verbal lease enforceable in Texas?", entity.StrategyMetadataScoped},
		{"Which overtime rules applied before 2019?", entity.StrategyMetadataScoped},
		{"What is promissory estoppel?", entity.StrategySemanticOnly},
		{"Explain the doctrine of adverse possession", entity.StrategySemanticOnly},
		{"Can my landlord keep my deposit for cleaning?", entity.StrategyHybrid},
		{"", entity.StrategyHybrid},
	}
	c := NewRuleClassifier()
	for _, tc := range cases {
		t.Run(tc.question, func(t *testing.T) {
			q := entity.NewQuery("u", "", tc.question, nil)
			assert.Equal(t, tc.want, c.Classify(context.Background(), q))
		})
	}
}

type stubChain struct {
	label string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *stubChain) Invoke(ctx context.Context, _ *wfmodel.ClassifyInput) (*wfmodel.ClassifyOutput, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &wfmodel.ClassifyOutput{Strategy: s.label}, nil
}

// memCache 模拟 redis.Cache 的读穿语义
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	keys []string
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Key(parts ...string) string {
	k := "legal"
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (m *memCache) ReadThrough(ctx context.Context, key string, _ time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if v, ok := m.data[key]; ok {
		return v, true, nil
	}
	v, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	b, _ := json.Marshal(v)
	m.data[key] = b
	return b, false, nil
}

func llmConfig() config.ClassifierConfig {
	return config.ClassifierConfig{Mode: "llm", ModelVersion: "classify_intent_v1", Timeout: 50 * time.Millisecond}
}

func TestLLMClassifier_CachesDeterministically(t *testing.T) {
	chain := &stubChain{label: "semantic_only"}
	cache := newMemCache()
	c := NewLLMClassifier(chain, cache, llmConfig())

	q := entity.NewQuery("u", "c", "What is a fiduciary duty?", []entity.ContextTurn{{Role: "user", Content: "hi"}})
	assert.Equal(t, entity.StrategySemanticOnly, c.Classify(context.Background(), q))
	assert.Equal(t, entity.StrategySemanticOnly, c.Classify(context.Background(), q))
	assert.Equal(t, int32(1), chain.calls.Load())
	require.Len(t, cache.keys, 2)
	assert.Equal(t, cache.keys[0], cache.keys[1])

	other := entity.NewQuery("u", "c", "What is a fiduciary duty?", nil)
	c.Classify(context.Background(), other)
	assert.NotEqual(t, cache.keys[0], cache.keys[2], "context is part of the cache key")
}

func TestLLMClassifier_FallsBackToHybrid(t *testing.T) {
	cases := map[string]*stubChain{
		"provider error": {err: errors.New("connection refused")},
		"unknown label":  {label: "vibes"},
		"timeout":        {label: "keyword_only", delay: time.Second},
	}
	for name, chain := range cases {
		t.Run(name, func(t *testing.T) {
			cache := newMemCache()
			c := NewLLMClassifier(chain, cache, llmConfig())
			got := c.Classify(context.Background(), entity.NewQuery("u", "", "anything", nil))
			assert.Equal(t, entity.StrategyHybrid, got)
			assert.Empty(t, cache.data, "failures are never cached")
		})
	}
}

func TestNew_SelectsImplementation(t *testing.T) {
	_, isRule := New(config.ClassifierConfig{Mode: "rules"}, &stubChain{}, nil).(*RuleClassifier)
	assert.True(t, isRule)
	_, isLLM := New(llmConfig(), &stubChain{}, nil).(*LLMClassifier)
	assert.True(t, isLLM)
}
