package ports

import (
	"context"
	"time"

	"github.com/eleven-am/routines/internal/domain"
)

type RetryPolicy struct {
	InitialInterval    time.Duration `json:"initialInterval"`
	BackoffCoefficient float64       `json:"backoffCoefficient"`
	MaximumInterval    time.Duration `json:"maximumInterval"`
	MaximumAttempts    int           `json:"maximumAttempts"`
}

func RetryPolicyFromConfig(cfg domain.RetryConfig) RetryPolicy {
	return RetryPolicy{
		InitialInterval:    cfg.InitialInterval,
		BackoffCoefficient: cfg.BackoffCoefficient,
		MaximumInterval:    cfg.MaximumInterval,
		MaximumAttempts:    cfg.MaximumAttempts,
	}
}

type ActivityOptions struct {
	Name                string
	StartToCloseTimeout time.Duration
	HeartbeatTimeout    time.Duration
	RetryPolicy         RetryPolicy
}

type ActivityFunc func(ctx context.Context) (*domain.PluginResult, error)

// ActivityRunner is the durable-execution substrate seam. It owns timeouts,
// retries and heartbeats; the engine hands the policy over untouched.
type ActivityRunner interface {
	RunActivity(ctx context.Context, opts ActivityOptions, fn ActivityFunc) (*domain.PluginResult, error)
}

type HeartbeatRecorder func(details ...any)

type heartbeatKey struct{}

func WithHeartbeatRecorder(ctx context.Context, recorder HeartbeatRecorder) context.Context {
	return context.WithValue(ctx, heartbeatKey{}, recorder)
}

// RecordHeartbeat reports liveness from inside a long-running plugin. It is
// a no-op when the substrate did not install a recorder.
func RecordHeartbeat(ctx context.Context, details ...any) {
	if recorder, ok := ctx.Value(heartbeatKey{}).(HeartbeatRecorder); ok && recorder != nil {
		recorder(details...)
	}
}

// NonRetryableError tells the substrate not to retry an activity failure.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }
func (e *NonRetryableError) Envelope() {}

func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}
