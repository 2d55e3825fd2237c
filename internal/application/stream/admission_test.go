package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-rag-api/internal/config"
)

func TestAdmissionRejectMode(t *testing.T) {
	a := NewAdmission(config.StreamConfig{MaxConcurrent: 2, AdmissionMode: config.AdmissionModeReject})
	ctx := context.Background()

	r1, err := a.Acquire(ctx)
	require.NoError(t, err)
	r2, err := a.Acquire(ctx)
	require.NoError(t, err)

	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	r1()
	r1()
	assert.Equal(t, 1, a.InUse())

	r3, err := a.Acquire(ctx)
	require.NoError(t, err)
	r2()
	r3()
	assert.Zero(t, a.InUse())
}

func TestAdmissionQueueMode(t *testing.T) {
	a := NewAdmission(config.StreamConfig{
		MaxConcurrent: 1,
		AdmissionMode: config.AdmissionModeQueue,
		QueueSize:     1,
		QueueTimeout:  time.Second,
	})
	ctx := context.Background()

	release, err := a.Acquire(ctx)
	require.NoError(t, err)

	queued := make(chan error, 1)
	go func() {
		r, err := a.Acquire(ctx)
		if err == nil {
			defer r()
		}
		queued <- err
	}()
	require.Eventually(t, func() bool { return a.Waiting() == 1 }, time.Second, time.Millisecond)

	// 队列已满
	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	release()
	select {
	case err := <-queued:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queued request was not admitted")
	}
	require.Eventually(t, func() bool { return a.InUse() == 0 }, time.Second, time.Millisecond)
}

func TestAdmissionQueueTimeout(t *testing.T) {
	a := NewAdmission(config.StreamConfig{
		MaxConcurrent: 1,
		AdmissionMode: config.AdmissionModeQueue,
		QueueSize:     4,
		QueueTimeout:  30 * time.Millisecond,
	})
	ctx := context.Background()

	release, err := a.Acquire(ctx)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = a.Acquire(ctx)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Zero(t, a.Waiting())
}
