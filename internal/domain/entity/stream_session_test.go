package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to SessionStatus
		ok       bool
	}{
		{SessionPending, SessionRetrieving, true},
		{SessionRetrieving, SessionReasoning, true},
		{SessionReasoning, SessionStreaming, true},
		{SessionStreaming, SessionCompleted, true},
		{SessionPending, SessionCancelled, true},
		{SessionReasoning, SessionFailed, true},
		{SessionPending, SessionReasoning, false},
		{SessionStreaming, SessionRetrieving, false},
		{SessionCompleted, SessionFailed, false},
		{SessionCancelled, SessionCancelled, false},
		{SessionPending, SessionCompleted, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStageOrdinals(t *testing.T) {
	assert.Equal(t, 8, StageCount)
	for i, s := range Stages {
		assert.Equal(t, i+1, s.Ordinal())
	}
	assert.Zero(t, StageName("unknown").Ordinal())
}

func TestParseStrategy(t *testing.T) {
	s, ok := ParseStrategy("metadata_scoped")
	assert.True(t, ok)
	assert.Equal(t, StrategyMetadataScoped, s)

	_, ok = ParseStrategy("vector")
	assert.False(t, ok)
}
