package calendar

import (
	"context"
	"errors"
	"time"
)

type retryPolicy struct {
	maxRetries  int
	backoff     time.Duration
	maxBackoff  time.Duration
	callTimeout time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		maxRetries:  3,
		backoff:     500 * time.Millisecond,
		maxBackoff:  8 * time.Second,
		callTimeout: 15 * time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs fn until it succeeds, fails with a non-transient error or runs out
// of retries. Each attempt gets its own timeout; an attempt that times out
// while ctx is still live counts as transient.
func (p retryPolicy) do(ctx context.Context, fn func(ctx context.Context) error) error {
	wait := p.backoff
	for attempt := 0; ; attempt++ {
		err := p.attempt(ctx, fn)
		if err == nil || !errors.Is(err, ErrTransient) || attempt >= p.maxRetries {
			return err
		}
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
		wait *= 2
		if p.maxBackoff > 0 && wait > p.maxBackoff {
			wait = p.maxBackoff
		}
	}
}

func (p retryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx := ctx
	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}
	err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTransient) {
		return errors.Join(ErrTransient, err)
	}
	return err
}
