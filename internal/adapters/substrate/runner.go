package substrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/eleven-am/routines/internal/adapters/logging"
	"github.com/eleven-am/routines/internal/domain"
	"github.com/eleven-am/routines/internal/ports"
)

// ActivityError is the envelope returned once an activity gives up. It
// unwraps to the last attempt's error.
type ActivityError struct {
	Name     string
	Attempts int
	Cause    error
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed after %d attempt(s): %v", e.Name, e.Attempts, e.Cause)
}

func (e *ActivityError) Unwrap() error { return e.Cause }
func (e *ActivityError) Envelope() {}

var ErrHeartbeatTimeout = errors.New("activity heartbeat timed out")

// LocalRunner runs activities in-process with the policy a durable
// substrate would apply: a start-to-close timeout per attempt, exponential
// retry and a heartbeat watchdog. It does not survive process restarts.
type LocalRunner struct {
	logger hclog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewLocalRunner(logger *slog.Logger) *LocalRunner {
	return &LocalRunner{
		logger: logging.NewHCLogger(logger).Named("substrate"),
		sleep:  sleepContext,
	}
}

func (r *LocalRunner) RunActivity(ctx context.Context, opts ports.ActivityOptions, fn ports.ActivityFunc) (*domain.PluginResult, error) {
	maxAttempts := opts.RetryPolicy.MaximumAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	logger := r.logger.With("activity", opts.Name)

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		attempts++
		result, err := r.attempt(ctx, opts, fn)
		if err == nil {
			if attempts > 1 {
				logger.Debug("activity succeeded after retry", "attempt", attempts)
			}
			return result, nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			logger.Debug("activity failed with non-retryable error", "attempt", attempts, "error", err)
			break
		}
		if attempts == maxAttempts {
			break
		}

		delay := backoff(opts.RetryPolicy, attempts)
		logger.Warn("activity attempt failed, retrying", "attempt", attempts, "max_attempts", maxAttempts, "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			break
		}
	}

	return nil, &ActivityError{Name: opts.Name, Attempts: attempts, Cause: lastErr}
}

// attempt runs fn once under the start-to-close timeout. The heartbeat
// watchdog arms on the first heartbeat so plugins that never heartbeat are
// only bounded by the timeout.
func (r *LocalRunner) attempt(ctx context.Context, opts ports.ActivityOptions, fn ports.ActivityFunc) (*domain.PluginResult, error) {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if opts.StartToCloseTimeout > 0 {
		var stop context.CancelFunc
		attemptCtx, stop = context.WithTimeout(attemptCtx, opts.StartToCloseTimeout)
		defer stop()
	}

	if opts.HeartbeatTimeout > 0 {
		var last atomic.Int64
		attemptCtx = ports.WithHeartbeatRecorder(attemptCtx, func(details ...any) {
			last.Store(time.Now().UnixNano())
		})
		done := make(chan struct{})
		defer close(done)
		go watchHeartbeat(done, &last, opts.HeartbeatTimeout, cancel)
	}

	result, err := fn(attemptCtx)
	if err != nil {
		if cause := context.Cause(attemptCtx); errors.Is(cause, ErrHeartbeatTimeout) {
			return nil, fmt.Errorf("%w: %v", ErrHeartbeatTimeout, err)
		}
		return nil, err
	}
	return result, nil
}

func watchHeartbeat(done <-chan struct{}, last *atomic.Int64, timeout time.Duration, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(timeout/4, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			seen := last.Load()
			if seen == 0 {
				continue
			}
			if now.Sub(time.Unix(0, seen)) > timeout {
				cancel(ErrHeartbeatTimeout)
				return
			}
		}
	}
}

// retryable reports whether another attempt could help. Panics, explicit
// non-retryable failures, unknown plugins and cancellation of the run
// itself are final.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var panicErr *domain.NodePanicError
	var nonRetryable *ports.NonRetryableError
	switch {
	case errors.As(err, &panicErr), errors.As(err, &nonRetryable):
		return false
	case errors.Is(err, domain.ErrUnknownPlugin), errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func backoff(policy ports.RetryPolicy, attempt int) time.Duration {
	initial := policy.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	coefficient := policy.BackoffCoefficient
	if coefficient < 1 {
		coefficient = 2.0
	}

	delay := time.Duration(float64(initial) * math.Pow(coefficient, float64(attempt-1)))
	if policy.MaximumInterval > 0 && (delay > policy.MaximumInterval || delay <= 0) {
		delay = policy.MaximumInterval
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ ports.ActivityRunner = (*LocalRunner)(nil)
