package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Paintersrp/rune2e/internal/config"
)

// ErrServerExited is returned by Wait when the watched process terminates
// before becoming ready.
var ErrServerExited = errors.New("server exited before becoming ready")

// WaitOptions controls the readiness wait loop.
type WaitOptions struct {
	// Interval between attempts. Non-positive values fall back to
	// config.DefaultReadinessInterval.
	Interval time.Duration
	// Timeout bounds the whole wait. Zero means no bound beyond ctx.
	Timeout time.Duration
	// AttemptTimeout bounds a single probe attempt.
	AttemptTimeout time.Duration
	// Exited, when non-nil, aborts the wait once closed.
	Exited <-chan struct{}
	// Notify is called after every failed attempt.
	Notify func(attempt int, err error)
}

// Wait blocks until prober succeeds, the timeout elapses, Exited is closed or
// ctx is cancelled. It returns the number of attempts made.
func Wait(ctx context.Context, prober Prober, opts WaitOptions) (int, error) {
	if prober == nil {
		return 0, errors.New("probe: nil prober")
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if opts.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, opts.Timeout)
		defer cancelTimeout()
	}
	if opts.Exited != nil {
		go func() {
			select {
			case <-opts.Exited:
				cancel(ErrServerExited)
			case <-ctx.Done():
			}
		}()
	}

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		attemptCtx := ctx
		attemptCancel := func() {}
		if opts.AttemptTimeout > 0 {
			attemptCtx, attemptCancel = context.WithTimeout(ctx, opts.AttemptTimeout)
		}
		err := prober.Probe(attemptCtx)
		attemptCancel()
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %s", opts.AttemptTimeout)
		}
		if opts.Notify != nil {
			opts.Notify(attempts, err)
		}
		return struct{}{}, err
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = config.DefaultReadinessInterval
	}
	// backoff.Retry applies its own elapsed-time cap unless told otherwise;
	// zero disables it so an unbounded wait is bounded only by ctx.
	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(opts.Timeout),
	}

	_, err := backoff.Retry(ctx, operation, retryOpts...)
	if err == nil {
		return attempts, nil
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrServerExited) {
		return attempts, ErrServerExited
	}
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) || ctx.Err() == nil {
		return attempts, fmt.Errorf("not ready after %d attempts: %w", attempts, err)
	}
	return attempts, ctx.Err()
}
