package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/genui-go/genui/pkg/config"
	"github.com/genui-go/genui/pkg/metrics"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// CircuitOpenError is returned while the breaker refuses requests.
type CircuitOpenError struct {
	RecoveryTime time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open until %s", e.RecoveryTime.Format(time.RFC3339))
}

// IsRetryable reports true: a retry after RecoveryTime gets a half-open
// probe.
func (e *CircuitOpenError) IsRetryable() bool { return true }

// CircuitBreaker trips open after a run of consecutive failures, probes the
// backend half-open after a recovery timeout, and closes again once enough
// probes succeed.
type CircuitBreaker struct {
	cfg  config.CircuitBreakerConfig
	name string

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	recoveryDeadline    time.Time

	collector *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerName names the breaker in state-change events.
func WithBreakerName(name string) BreakerOption {
	return func(b *CircuitBreaker) { b.name = name }
}

// WithBreakerCollector routes state-change events into the given bus.
func WithBreakerCollector(c *metrics.Collector) BreakerOption {
	return func(b *CircuitBreaker) { b.collector = c }
}

// WithBreakerLogger sets the breaker logger.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(b *CircuitBreaker) { b.logger = logger }
}

// WithBreakerClock overrides the time source.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) { b.now = now }
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		cfg:    cfg,
		name:   "default",
		state:  StateClosed,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CheckState gates a request. While open and before the recovery deadline it
// returns CircuitOpenError; at the deadline it moves to half-open and admits
// the probe.
func (b *CircuitBreaker) CheckState() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Before(b.recoveryDeadline) {
		return &CircuitOpenError{RecoveryTime: b.recoveryDeadline}
	}
	b.halfOpenSuccesses = 0
	b.transitionLocked(StateHalfOpen)
	return nil
}

// RecordSuccess reports a successful request.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessThreshold {
			b.consecutiveFailures = 0
			b.halfOpenSuccesses = 0
			b.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure reports a failed request.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.recoveryDeadline = b.now().Add(b.cfg.RecoveryTimeout)
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately.
		b.recoveryDeadline = b.now().Add(b.cfg.RecoveryTimeout)
		b.transitionLocked(StateOpen)
	}
}

// Execute wraps op with the full check/record cycle.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.CheckState(); err != nil {
		return err
	}
	err := op(ctx)
	if err != nil {
		// Cancellation says nothing about backend health.
		if ctx.Err() == nil {
			b.RecordFailure()
		}
		return err
	}
	b.RecordSuccess()
	return nil
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionLocked moves to next and emits the state change. Callers hold
// b.mu.
func (b *CircuitBreaker) transitionLocked(next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next

	b.logger.Info("circuit breaker state change",
		"breaker", b.name,
		"from", string(prev),
		"to", string(next))
	b.collector.Emit(metrics.BreakerStateChange{
		Timestamp: b.now(),
		Name:      b.name,
		From:      string(prev),
		To:        string(next),
	})
}
