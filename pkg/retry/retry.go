// Package retry 提供外部调用的有界指数退避重试
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	// AttemptTimeout 单次调用的超时，0 表示只受外层 ctx 约束
	AttemptTimeout time.Duration
}

// DefaultPolicy 默认策略：3 次，200ms 起步，上限 2s
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Initial: 200 * time.Millisecond, Max: 2 * time.Second, Multiplier: 2}
}

// Permanent 标记不可重试错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Retryable 去掉 Permanent 标记，让外层策略按次数重试
func Retryable(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// IsTransient 判断错误是否值得重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// Do 执行 fn，失败时按策略退避重试；返回最后一次错误
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), notify ...func(attempt int, err error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	n := 0
	op := func() (T, error) {
		n++
		callCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		v, err := fn(callCtx)
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		return v, err
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
	}
	if len(notify) > 0 && notify[0] != nil {
		cb := notify[0]
		opts = append(opts, backoff.WithNotify(func(err error, _ time.Duration) { cb(n, err) }))
	}
	return backoff.Retry(ctx, op, opts...)
}
