package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	wfmodel "legal-rag-api/internal/workflow/model"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/metrics"
)

const (
	defaultTimeout  = 3 * time.Second
	defaultCacheTTL = 24 * time.Hour
	contextTurns    = 4
)

// IntentChain 分类模型调用（workflow/chain.ClassifyChain）
type IntentChain interface {
	Invoke(ctx context.Context, in *wfmodel.ClassifyInput) (*wfmodel.ClassifyOutput, error)
}

// ResultCache 带 singleflight 的读穿缓存（redis.Cache）
type ResultCache interface {
	Key(parts ...string) string
	ReadThrough(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, bool, error)
}

// LLMClassifier 模型分类，任何失败都降级为 hybrid
type LLMClassifier struct {
	chain IntentChain
	cache ResultCache
	cfg   config.ClassifierConfig
}

func NewLLMClassifier(chain IntentChain, cache ResultCache, cfg config.ClassifierConfig) *LLMClassifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.ModelVersion == "" {
		cfg.ModelVersion = "classify_intent_v1"
	}
	return &LLMClassifier{chain: chain, cache: cache, cfg: cfg}
}

func (c *LLMClassifier) Classify(ctx context.Context, q entity.Query) entity.RetrievalStrategy {
	contextText := q.ContextText(contextTurns)

	load := func(ctx context.Context) (any, error) {
		return c.invoke(ctx, q.RawText, contextText)
	}

	var (
		label  string
		source = "llm"
		err    error
	)
	if c.cache != nil {
		var (
			data []byte
			hit  bool
		)
		data, hit, err = c.cache.ReadThrough(ctx, c.cacheKey(q.RawText, contextText), c.cfg.CacheTTL, load)
		if err == nil {
			err = json.Unmarshal(data, &label)
		}
		if hit {
			source = "cache"
		}
	} else {
		var v any
		v, err = load(ctx)
		if err == nil {
			label, _ = v.(string)
		}
	}

	strategy, ok := entity.ParseStrategy(label)
	if err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("unknown strategy label %q", label)
		}
		logger.Warn(ctx, "intent classification degraded to hybrid",
			"error", err.Error(),
		)
		metrics.ClassificationTotal.WithLabelValues(string(entity.StrategyHybrid), "fallback").Inc()
		return entity.StrategyHybrid
	}
	metrics.ClassificationTotal.WithLabelValues(string(strategy), source).Inc()
	return strategy
}

// invoke 只有合法标签才会返回成功，从而进入缓存
func (c *LLMClassifier) invoke(ctx context.Context, question, contextText string) (string, error) {
	if c.chain == nil {
		return "", fmt.Errorf("classifier chain not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	out, err := c.chain.Invoke(ctx, &wfmodel.ClassifyInput{
		Provider: c.cfg.Provider,
		Question: question,
		Context:  contextText,
	})
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", fmt.Errorf("empty classification")
	}
	if _, ok := entity.ParseStrategy(out.Strategy); !ok {
		return "", fmt.Errorf("unknown strategy label %q", out.Strategy)
	}
	return out.Strategy, nil
}

func (c *LLMClassifier) cacheKey(question, contextText string) string {
	h := sha256.New()
	h.Write([]byte(c.cfg.ModelVersion))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(question)))
	h.Write([]byte{0})
	h.Write([]byte(contextText))
	return c.cache.Key("classify", c.cfg.ModelVersion, hex.EncodeToString(h.Sum(nil)))
}

// New 按配置选择实现
func New(cfg config.ClassifierConfig, chain IntentChain, cache ResultCache) Classifier {
	if strings.EqualFold(cfg.Mode, "llm") && chain != nil {
		return NewLLMClassifier(chain, cache, cfg)
	}
	return NewRuleClassifier()
}
