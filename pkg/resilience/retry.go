package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/genui-go/genui/pkg/config"
	"github.com/genui-go/genui/pkg/metrics"
)

// retryable is implemented by errors that carry their own retry verdict.
type retryable interface {
	IsRetryable() bool
}

// RetryPolicy retries failed operations with exponential backoff and jitter.
type RetryPolicy struct {
	cfg       config.RetryConfig
	collector *metrics.Collector
	logger    *slog.Logger
	rng       *rand.Rand

	// Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// RetryOption configures a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithRetryCollector routes RetryAttempt events into the given bus.
func WithRetryCollector(c *metrics.Collector) RetryOption {
	return func(p *RetryPolicy) { p.collector = c }
}

// WithRetryLogger sets the policy logger.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(p *RetryPolicy) { p.logger = logger }
}

// WithRetrySleeper overrides the wait primitive.
func WithRetrySleeper(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) { p.sleep = sleep }
}

// NewRetryPolicy creates a policy from config.
func NewRetryPolicy(cfg config.RetryConfig, opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		cfg:    cfg,
		logger: slog.Default(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldRetry decides whether a failed attempt (1-based) gets another try.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.cfg.MaxAttempts {
		return false
	}
	// Caller gave up; retrying would only burn budget.
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// Delay returns the backoff before the given retry (attempt is 1-based):
// min(initialDelay * multiplier^(attempt-1), maxDelay), scaled by
// 1 + jitter*rand(-1,1).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.cfg.BackoffMultiplier
		if delay >= float64(p.cfg.MaxDelay) {
			break
		}
	}
	if delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}

	jitter := 1 + p.cfg.JitterFactor*(p.rng.Float64()*2-1)
	d := time.Duration(delay * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// Do runs op, retrying per the policy. The error of the final attempt is
// returned unwrapped.
func (p *RetryPolicy) Do(ctx context.Context, requestID string, op func(context.Context) error) error {
	attempt := 1
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.ShouldRetry(err, attempt) {
			return err
		}

		delay := p.Delay(attempt)
		p.logger.Warn("retrying after failure",
			"attempt", attempt,
			"delay", delay,
			"error", err)
		p.collector.Emit(metrics.RetryAttempt{
			Timestamp: time.Now(),
			RequestID: requestID,
			Attempt:   attempt,
			Delay:     delay,
			Reason:    err.Error(),
		})

		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		attempt++
	}
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
