package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func TestDo_SucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("temporary")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	var notified []int
	_, err := Do(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
		calls++
		return "", errors.New("down")
	}, func(attempt int, _ error) { notified = append(notified, attempt) })
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, notified)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad request")
	_, err := Do(context.Background(), fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
	assert.False(t, IsTransient(Permanent(sentinel)))
	assert.True(t, IsTransient(sentinel))
}

func TestRetryableClearsPermanent(t *testing.T) {
	sentinel := errors.New("400 bad request")
	calls := 0
	v, err := Do(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(Permanent(sentinel))
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 2, calls)

	assert.Same(t, sentinel, Retryable(Permanent(sentinel)))
	assert.Same(t, sentinel, Retryable(sentinel))
	assert.NoError(t, Retryable(nil))
}

func TestDo_AttemptTimeout(t *testing.T) {
	p := fastPolicy(2)
	p.AttemptTimeout = 10 * time.Millisecond
	calls := 0
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, calls)
}
