package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/domain/entity"
	"legal-rag-api/internal/domain/repository"
	"legal-rag-api/internal/domain/service"
	"legal-rag-api/pkg/logger"
	"legal-rag-api/pkg/metrics"
	"legal-rag-api/pkg/retry"
	"legal-rag-api/pkg/tracer"
)

const (
	defaultTopK           = 8
	defaultChannelTopN    = 20
	defaultChannelTimeout = 3 * time.Second
)

// Engine 混合检索引擎
type Engine struct {
	embedder embedding.Embedder
	vector   VectorRepository
	passages repository.PassageRepository
	cfg      config.RetrievalConfig
}

func NewEngine(embedder embedding.Embedder, vectorRepo VectorRepository, passages repository.PassageRepository, cfg config.RetrievalConfig) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.ChannelTopN <= 0 {
		cfg.ChannelTopN = defaultChannelTopN
	}
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = defaultChannelTimeout
	}
	return &Engine{
		embedder: embedder,
		vector:   vectorRepo,
		passages: passages,
		cfg:      cfg,
	}
}

func (e *Engine) semanticEnabled() bool {
	return e != nil && e.embedder != nil && e.vector != nil
}

func (e *Engine) retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if e.cfg.Retry.MaxAttempts > 0 {
		p.MaxAttempts = e.cfg.Retry.MaxAttempts
	}
	if e.cfg.Retry.Backoff.Initial > 0 {
		p.Initial = e.cfg.Retry.Backoff.Initial
	}
	if e.cfg.Retry.Backoff.Max > 0 {
		p.Max = e.cfg.Retry.Backoff.Max
	}
	if e.cfg.Retry.Backoff.Multiplier > 1 {
		p.Multiplier = e.cfg.Retry.Backoff.Multiplier
	}
	p.AttemptTimeout = e.cfg.ChannelTimeout
	return p
}

// Retrieve 按策略并发执行各通道并融合为证据集
func (e *Engine) Retrieve(ctx context.Context, q entity.Query, strategy entity.RetrievalStrategy) (entity.EvidenceSet, *Report, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Engine.Retrieve")
	defer span.End()

	question := strings.TrimSpace(q.RawText)
	if question == "" {
		return nil, nil, ErrEmptyQuery
	}

	p := planFor(strategy)
	report := &Report{
		Strategy: strategy,
		Weights:  e.cfg.WeightsFor(string(strategy)),
		Filter:   ExtractMetadataFilter(question),
	}

	results := make([]ChannelResult, len(p.channels))
	durations := make([]time.Duration, len(p.channels))

	// 通道错误写入结果而不返回，避免取消兄弟通道
	var g errgroup.Group
	for i, ch := range p.channels {
		g.Go(func() error {
			start := time.Now()
			cands, err := e.runChannel(ctx, ch, question, report.Filter, p.scopeSemantic)
			durations[i] = time.Since(start)
			results[i] = ChannelResult{Channel: ch, Candidates: cands, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, r := range results {
		status := "success"
		if r.Err != nil {
			status = "error"
			failed++
			logger.Warn(ctx, "retrieval channel failed",
				"channel", string(r.Channel),
				"error", r.Err.Error(),
			)
		}
		metrics.RetrievalChannelDuration.WithLabelValues(string(r.Channel)).Observe(durations[i].Seconds())
		metrics.RetrievalChannelTotal.WithLabelValues(string(r.Channel), status).Inc()
		report.Channels = append(report.Channels, ChannelStatus{
			Channel:  r.Channel,
			Count:    len(r.Candidates),
			Failed:   r.Err != nil,
			Duration: durations[i],
		})
	}

	if failed == len(results) {
		span.RecordError(ErrRetrievalUnavailable)
		return nil, report, fmt.Errorf("all %d channels failed: %w", failed, ErrRetrievalUnavailable)
	}
	if failed > 0 {
		report.PartialEvidence = true
		metrics.RetrievalPartialTotal.Inc()
	}

	set := Fuse(results, report.Weights, e.cfg.TopK)
	metrics.RetrievalEvidenceSize.WithLabelValues(string(strategy)).Observe(float64(len(set)))
	logger.Debug(ctx, "retrieval completed",
		"strategy", string(strategy),
		"evidence", len(set),
		"partial", report.PartialEvidence,
	)
	return set, report, nil
}

func (e *Engine) runChannel(ctx context.Context, ch entity.Channel, question string, filter repository.MetadataFilter, scoped bool) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "retrieval.channel."+string(ch))
	defer span.End()

	var (
		cands []Candidate
		err   error
	)
	switch ch {
	case entity.ChannelSemantic:
		var jurisdictions []string
		if scoped {
			jurisdictions = filter.Jurisdictions
		}
		cands, err = e.semantic(ctx, question, jurisdictions, filter)
	case entity.ChannelKeyword:
		cands, err = e.keyword(ctx, question, filter)
	case entity.ChannelMetadata:
		cands, err = e.metadata(ctx, filter)
	default:
		err = fmt.Errorf("unknown channel %q", ch)
	}
	if err != nil {
		span.RecordError(err)
	}
	return cands, err
}

func (e *Engine) semantic(ctx context.Context, question string, jurisdictions []string, filter repository.MetadataFilter) ([]Candidate, error) {
	if !e.semanticEnabled() {
		return nil, ErrVectorDisabled
	}
	policy := e.retryPolicy()

	vec, err := retry.Do(ctx, policy, func(ctx context.Context) ([]float32, error) {
		return e.embedQuery(ctx, question)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := retry.Do(ctx, policy, func(ctx context.Context) ([]*VectorSearchResult, error) {
		return e.vector.Search(ctx, &VectorSearchParams{
			QueryVector:   vec,
			TopK:          e.cfg.ChannelTopN,
			Jurisdictions: jurisdictions,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		if r == nil || strings.TrimSpace(r.DocumentID) == "" {
			continue
		}
		var tags []string
		if r.Jurisdiction != "" {
			tags = append(tags, "jurisdiction:"+r.Jurisdiction)
		}
		if r.ActName != "" {
			tags = append(tags, "act:"+r.ActName)
		}
		out = append(out, Candidate{
			DocumentID: r.DocumentID,
			PassageID:  r.PassageID,
			Title:      r.Title,
			Text:       strings.TrimSpace(r.TextContent),
			Tags:       tags,
			// COSINE 度量下 Milvus 返回的即为相似度
			Score:      float64(r.Score),
			ExactMatch: exactOnVectorFields(filter, r),
		})
	}
	return out, nil
}

// exactOnVectorFields 向量结果只带法域与法案名，仅当过滤条件只涉及这两项时判定精确命中
func exactOnVectorFields(f repository.MetadataFilter, r *VectorSearchResult) bool {
	if len(f.Sections) > 0 || f.EffectiveFrom != nil || f.EffectiveTo != nil {
		return false
	}
	return MatchesFilter(f, r.Jurisdiction, r.ActName, "", nil)
}

func (e *Engine) keyword(ctx context.Context, question string, filter repository.MetadataFilter) ([]Candidate, error) {
	if e.passages == nil {
		return nil, fmt.Errorf("keyword channel: passage repository is not configured")
	}
	rows, err := retry.Do(ctx, e.retryPolicy(), func(ctx context.Context) ([]repository.ScoredPassage, error) {
		return e.passages.KeywordSearch(ctx, question, e.cfg.ChannelTopN)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		if r.Passage == nil {
			continue
		}
		c := candidateFromPassage(r.Passage, r.Score)
		c.ExactMatch = MatchesFilter(filter, r.Passage.Jurisdiction, r.Passage.ActName, r.Passage.Section, r.Passage.EffectiveAt)
		out = append(out, c)
	}
	return out, nil
}

func (e *Engine) metadata(ctx context.Context, filter repository.MetadataFilter) ([]Candidate, error) {
	// 无可用过滤条件时该通道为空而非失败
	if filter.IsEmpty() {
		return nil, nil
	}
	if e.passages == nil {
		return nil, fmt.Errorf("metadata channel: passage repository is not configured")
	}
	rows, err := retry.Do(ctx, e.retryPolicy(), func(ctx context.Context) ([]*entity.LegalPassage, error) {
		return e.passages.MetadataSearch(ctx, filter, e.cfg.ChannelTopN)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run metadata search: %w", err)
	}
	out := make([]Candidate, 0, len(rows))
	for _, p := range rows {
		if p == nil {
			continue
		}
		c := candidateFromPassage(p, 1.0)
		c.ExactMatch = true
		out = append(out, c)
	}
	return out, nil
}

func candidateFromPassage(p *entity.LegalPassage, score float64) Candidate {
	return Candidate{
		DocumentID: p.DocumentID,
		PassageID:  p.ID,
		Title:      p.Title,
		Text:       strings.TrimSpace(p.Text),
		Tags:       p.MetadataTags(),
		Score:      score,
	}
}

func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, retry.Permanent(ErrEmptyQuery)
	}
	v64, err := e.embedder.EmbedStrings(embedContext(ctx, "embed_query"), []string{q})
	if err != nil {
		return nil, err
	}
	if len(v64) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return toFloat32(v64[0]), nil
}

// embedContext 标注调用归属并挂载全局回调，直接调用组件时回调不会自动触发
func embedContext(ctx context.Context, workflow string) context.Context {
	ctx = service.WithLLMCall(ctx, service.LLMCall{Workflow: workflow, Provider: "embedder"})
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{Name: workflow, Component: components.ComponentOfEmbedding})
}

func toFloat32(vec []float64) []float32 {
	out := make([]float32, 0, len(vec))
	for _, x := range vec {
		out = append(out, float32(x))
	}
	return out
}
