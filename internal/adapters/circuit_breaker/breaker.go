// Package circuit_breaker stops calls to a dependency that keeps failing
// and probes it again after a cool-down.
package circuit_breaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests when circuit breaker is half-open")
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Interval is how long the breaker stays open before probing.
	Interval time.Duration
	// MaxRequests bounds concurrent probes while half-open.
	MaxRequests int
	// IsFailure decides which errors count against the dependency. Nil
	// counts every non-nil error.
	IsFailure     func(error) bool
	OnStateChange func(name string, from, to State)
}

type Metrics struct {
	State              State
	FailureCount       int64
	SuccessCount       int64
	ConsecutiveFailure int64
	ConsecutiveSuccess int64
	RequestsRejected   int64
	LastStateChange    time.Time
}

type Breaker struct {
	name   string
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            State
	metrics          Metrics
	nextRetry        time.Time
	halfOpenRequests int
}

func New(name string, config Config, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}

	b := &Breaker{
		name:   name,
		config: config,
		logger: logger.With("component", "circuit-breaker", "name", name),
		now:    time.Now,
		state:  StateClosed,
	}
	b.metrics.LastStateChange = b.now()
	return b
}

// Call runs fn unless the breaker is open. fn's error is returned as is;
// whether it counts as a failure is up to Config.IsFailure.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if b.config.IsFailure(err) {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !b.now().Before(b.nextRetry) {
		b.setState(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		b.metrics.RequestsRejected++
		return ErrCircuitBreakerOpen
	case StateHalfOpen:
		if b.halfOpenRequests >= b.config.MaxRequests {
			b.metrics.RequestsRejected++
			return ErrTooManyRequests
		}
		b.halfOpenRequests++
	}
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.SuccessCount++
	b.metrics.ConsecutiveSuccess++
	b.metrics.ConsecutiveFailure = 0

	if b.state == StateHalfOpen {
		b.halfOpenRequests--
		if b.metrics.ConsecutiveSuccess >= int64(b.config.SuccessThreshold) {
			b.setState(StateClosed)
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.metrics.FailureCount++
	b.metrics.ConsecutiveFailure++
	b.metrics.ConsecutiveSuccess = 0

	switch b.state {
	case StateClosed:
		if b.metrics.ConsecutiveFailure >= int64(b.config.FailureThreshold) {
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(next State) {
	prev := b.state
	if prev == next {
		return
	}

	b.logger.Info("circuit breaker state change",
		"from", prev.String(),
		"to", next.String(),
		"consecutive_failures", b.metrics.ConsecutiveFailure,
	)

	b.state = next
	b.metrics.LastStateChange = b.now()
	b.halfOpenRequests = 0

	switch next {
	case StateOpen:
		b.nextRetry = b.now().Add(b.config.Interval)
	case StateHalfOpen:
		b.metrics.ConsecutiveSuccess = 0
	case StateClosed:
		b.nextRetry = time.Time{}
		b.metrics.ConsecutiveFailure = 0
	}

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(b.name, prev, next)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.metrics
	m.State = b.state
	return m
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info("circuit breaker reset")
	b.setState(StateClosed)
	b.metrics = Metrics{State: StateClosed, LastStateChange: b.now()}
}
