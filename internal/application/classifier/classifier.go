// Package classifier 将问题路由到检索策略
package classifier

import (
	"context"
	"regexp"
	"strings"

	"legal-rag-api/internal/application/retrieval"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/pkg/metrics"
)

// Classifier 返回检索策略，从不失败
type Classifier interface {
	Classify(ctx context.Context, q entity.Query) entity.RetrievalStrategy
}

var (
	caseCitationPattern = regexp.MustCompile(`\b[A-Z][A-Za-z.'&-]+\s+v\.?\s+[A-Z][A-Za-z.'&-]+`)
	quotedPhrasePattern = regexp.MustCompile(`"[^"]{3,}"`)
	conceptualPattern   = regexp.MustCompile(`(?i)^\s*(what\s+(is|are)\b|what\s+does\s+.+\s+mean|explain\b|define\b|describe\b|meaning\s+of\b|difference\s+between\b|how\s+does\b)`)
)

// RuleClassifier 基于关键词和模式的确定性分类
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (RuleClassifier) Classify(_ context.Context, q entity.Query) entity.RetrievalStrategy {
	s := classifyByRules(q.RawText)
	metrics.ClassificationTotal.WithLabelValues(string(s), "rules").Inc()
	return s
}

func classifyByRules(question string) entity.RetrievalStrategy {
	text := strings.TrimSpace(question)
	switch {
	case text == "":
		return entity.StrategyHybrid
	case retrieval.HasCitation(text), caseCitationPattern.MatchString(text), quotedPhrasePattern.MatchString(text):
		return entity.StrategyKeywordOnly
	case !retrieval.ExtractMetadataFilter(text).IsEmpty():
		return entity.StrategyMetadataScoped
	case conceptualPattern.MatchString(text):
		return entity.StrategySemanticOnly
	default:
		return entity.StrategyHybrid
	}
}
