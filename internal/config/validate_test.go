package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Retrieval.Weights = FusionWeights{Semantic: 0.6, Keyword: 0.3, MetadataBoost: 0.1}
	cfg.Retrieval.TopK = 8
	cfg.Retrieval.ChannelTopN = 20
	cfg.Reasoning.StageTimeout = 45 * time.Second
	cfg.Reasoning.StageAttempts = 2
	cfg.Reasoning.RetryBackoff = BackoffConfig{Initial: 500 * time.Millisecond, Max: 4 * time.Second, Multiplier: 2}
	cfg.Stream.MaxConcurrent = 32
	cfg.Stream.AdmissionMode = AdmissionModeReject
	cfg.Stream.MaxActivePerUser = 3
	cfg.Stream.HeartbeatEvery = 10 * time.Second
	cfg.Registry.OrphanTimeout = 2 * time.Minute
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
	assert.Equal(t, 94*time.Second, validConfig().Reasoning.WorstCaseStage())
}

func TestValidateOrphanTimeoutCoversSlowStage(t *testing.T) {
	cfg := validConfig()
	cfg.Reasoning.StageTimeout = time.Minute
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry.orphan_timeout (2m0s) must exceed the worst-case stage duration 2m4s")

	cfg.Registry.OrphanTimeout = 3 * time.Minute
	assert.NoError(t, cfg.Validate())
}

func TestValidateOrphanTimeoutCoversHeartbeat(t *testing.T) {
	cfg := validConfig()
	cfg.Stream.HeartbeatEvery = 5 * time.Minute
	cfg.Registry.OrphanTimeout = 3 * time.Minute
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must exceed stream.heartbeat_every")
}

func TestWorstCaseStageFallsBackToInitialBackoff(t *testing.T) {
	c := ReasoningConfig{
		StageTimeout:  10 * time.Second,
		StageAttempts: 3,
		RetryBackoff:  BackoffConfig{Initial: time.Second},
	}
	assert.Equal(t, 32*time.Second, c.WorstCaseStage())

	c.StageAttempts = 0
	assert.Equal(t, 10*time.Second, c.WorstCaseStage())
}
