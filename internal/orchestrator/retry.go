package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/waconsole/internal/driver"
	"github.com/talkincode/waconsole/pkg/metrics"
)

// Sentinel errors of the retry layer. Callers branch on these with
// errors.Is to pick the response code.
var (
	// ErrConnectionUnstable means the pre-flight probe saw the client in a
	// non-connected state and the operation was not attempted at all.
	ErrConnectionUnstable = errors.New("connection unstable")

	// ErrRetriesExhausted wraps the last attempt's error after the attempt
	// budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Executor retries an operation with exponential backoff. A zero value is
// not usable; construct through NewExecutor.
type Executor struct {
	maxAttempts int
	baseDelay   time.Duration
}

func NewExecutor(maxAttempts int, baseDelay time.Duration) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Executor{maxAttempts: maxAttempts, baseDelay: baseDelay}
}

// Run invokes op up to the attempt budget, doubling the sleep between
// attempts starting from baseDelay. Context cancellation stops the loop
// immediately.
func (e *Executor) Run(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if attempt > 1 {
			metrics.IncrCounter("executor_retries_total", 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		zap.L().Debug("operation attempt failed",
			zap.String("op", label),
			zap.Int("attempt", attempt),
			zap.Error(last))
	}
	metrics.IncrCounter("executor_exhausted_total", 1)
	return errors.Wrapf(ErrRetriesExhausted, "%s: %v", label, last)
}

// RunProbed is Run with a health pre-check: reads against a session that is
// not currently connected fail fast without spending the attempt budget.
func (e *Executor) RunProbed(ctx context.Context, label string, c driver.Client, op func(ctx context.Context) error) error {
	state, err := c.GetState(ctx)
	if err != nil || state != driver.StateConnected {
		metrics.IncrCounter("executor_probe_rejects_total", 1)
		if err != nil {
			return errors.Wrapf(ErrConnectionUnstable, "%s: probe: %v", label, err)
		}
		return errors.Wrapf(ErrConnectionUnstable, "%s: client state %s", label, state)
	}
	return e.Run(ctx, label, op)
}

func (e *Executor) backoff(attempt int) time.Duration {
	d := e.baseDelay
	for i := 1; i < attempt-1; i++ {
		d *= 2
	}
	return d
}
