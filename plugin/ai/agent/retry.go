package agent

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hrygo/calbook/plugin/ai/metrics"
	"github.com/hrygo/calbook/plugin/ai/schedule"
)

// maxAttempts is one call plus one retry.
const maxAttempts = 2

// backendCaller runs calendar calls for one turn. Each attempt gets its own
// timeout; a transient failure is retried once after a backoff.
type backendCaller struct {
	timeout time.Duration
	backoff time.Duration
	metrics metrics.MetricsService
	logger  *slog.Logger

	retries atomic.Int32
}

// Retries returns how many retries the turn has performed so far.
func (c *backendCaller) Retries() int {
	return int(c.retries.Load())
}

// callBackend invokes fn under the retry policy. The returned error is already
// mapped to the domain taxonomy.
func callBackend[T any](ctx context.Context, c *backendCaller, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = attemptBackend(ctx, c, op, fn)
		if err == nil {
			return result, nil
		}
		if attempt == maxAttempts || !ShouldRetry(err) || ctx.Err() != nil {
			break
		}

		c.logger.Warn("calendar call failed, retrying",
			"op", op,
			"attempt", attempt,
			"backoff", c.backoff,
			"error", err)
		c.retries.Add(1)
		c.metrics.RecordRetry(ctx, op)
		if !sleepContext(ctx, c.backoff) {
			break
		}
	}
	var zero T
	return zero, schedule.BackendFailure(op, err)
}

// attemptBackend runs a single try of fn under the per-call timeout.
func attemptBackend[T any](ctx context.Context, c *backendCaller, op string, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := attemptContext(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := fn(callCtx)
	var be *schedule.BackendError
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && !errors.As(err, &be) {
		// The per-call deadline fired, not the turn's.
		err = &schedule.BackendError{Op: op, Transient: true, Timeout: true, Err: err}
	}
	c.metrics.RecordBackendCall(ctx, op, outcomeOf(err), time.Since(start))
	return result, err
}

func attemptContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// sleepContext waits d or until ctx is done. It reports whether the full
// wait elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
