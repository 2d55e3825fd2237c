package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate 校验运行时配置的取值范围
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if err := c.Retrieval.Weights.validate("retrieval.weights"); err != nil {
		errs = append(errs, err)
	}
	for name, w := range c.Retrieval.StrategyWeights {
		if err := w.validate("retrieval.strategy_weights." + name); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK))
	}
	if c.Retrieval.ChannelTopN < c.Retrieval.TopK {
		errs = append(errs, fmt.Errorf("retrieval.channel_top_n (%d) must be >= top_k (%d)", c.Retrieval.ChannelTopN, c.Retrieval.TopK))
	}

	if c.Reasoning.MinEvidencePerIssue < 0 {
		errs = append(errs, fmt.Errorf("reasoning.min_evidence_per_issue must be >= 0"))
	}
	if c.Reasoning.StageAttempts < 1 {
		errs = append(errs, fmt.Errorf("reasoning.stage_attempts must be >= 1"))
	}

	if c.Stream.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("stream.max_concurrent must be >= 1, got %d", c.Stream.MaxConcurrent))
	}
	switch strings.ToLower(c.Stream.AdmissionMode) {
	case AdmissionModeReject, AdmissionModeQueue:
	default:
		errs = append(errs, fmt.Errorf("stream.admission_mode must be %q or %q, got %q", AdmissionModeReject, AdmissionModeQueue, c.Stream.AdmissionMode))
	}
	if c.Stream.MaxActivePerUser < 1 || c.Stream.MaxActivePerUser > 10 {
		errs = append(errs, fmt.Errorf("stream.max_active_per_user must be within 1..10, got %d", c.Stream.MaxActivePerUser))
	}

	if c.Registry.OrphanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("registry.orphan_timeout must be positive"))
	} else {
		if budget := c.Reasoning.WorstCaseStage(); c.Registry.OrphanTimeout <= budget {
			errs = append(errs, fmt.Errorf("registry.orphan_timeout (%s) must exceed the worst-case stage duration %s (stage_timeout x stage_attempts + backoff)", c.Registry.OrphanTimeout, budget))
		}
		if c.Registry.OrphanTimeout <= c.Stream.HeartbeatEvery {
			errs = append(errs, fmt.Errorf("registry.orphan_timeout (%s) must exceed stream.heartbeat_every (%s)", c.Registry.OrphanTimeout, c.Stream.HeartbeatEvery))
		}
	}
	if c.Security.StreamToken.Enabled && strings.TrimSpace(c.Security.StreamToken.Secret) == "" {
		errs = append(errs, fmt.Errorf("security.stream_token.secret is required when stream tokens are enabled"))
	}

	return errors.Join(errs...)
}

// WorstCaseStage 单个阶段耗尽全部重试的最长耗时
func (c ReasoningConfig) WorstCaseStage() time.Duration {
	attempts := max(c.StageAttempts, 1)
	wait := c.RetryBackoff.Max
	if wait <= 0 {
		wait = c.RetryBackoff.Initial
	}
	return c.StageTimeout*time.Duration(attempts) + wait*time.Duration(attempts-1)
}

func (w FusionWeights) validate(path string) error {
	if w.Semantic < 0 || w.Keyword < 0 || w.MetadataBoost < 0 {
		return fmt.Errorf("%s: weights must be non-negative", path)
	}
	if w.Semantic+w.Keyword+w.MetadataBoost == 0 {
		return fmt.Errorf("%s: at least one weight must be positive", path)
	}
	return nil
}

// WeightsFor 返回策略对应的融合权重，未覆盖时使用全局权重
func (c RetrievalConfig) WeightsFor(strategy string) FusionWeights {
	if w, ok := c.StrategyWeights[strategy]; ok {
		return w
	}
	return c.Weights
}
