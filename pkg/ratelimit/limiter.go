package ratelimit

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/genui-go/genui/pkg/config"
)

const window = time.Minute

// WaitObserver is notified whenever an admission has to wait. The dispatcher
// uses it to emit rate-limit metrics.
type WaitObserver func(wait time.Duration, reason string)

// Wait reasons reported to the observer.
const (
	ReasonRequestsPerMinute = "requests_per_minute"
	ReasonRequestsPerDay    = "requests_per_day"
	ReasonTokensPerMinute   = "tokens_per_minute"
)

type tokenRecord struct {
	at     time.Time
	tokens int
}

// Limiter is a proactive sliding-window admission gate over three budgets:
// requests per minute, requests per day and estimated tokens per minute.
// The daily counter resets at UTC midnight.
type Limiter struct {
	cfg config.RateLimitConfig

	mu         sync.Mutex
	requests   []time.Time
	tokens     []tokenRecord
	dailyCount int
	dailyReset time.Time

	observer WaitObserver
	logger   *slog.Logger

	// Injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithWaitObserver registers the wait callback.
func WithWaitObserver(fn WaitObserver) LimiterOption {
	return func(l *Limiter) { l.observer = fn }
}

// WithLimiterLogger sets the limiter logger.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) { l.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) { l.now = now }
}

// WithSleeper overrides the wait primitive.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *Limiter) { l.sleep = sleep }
}

// NewLimiter creates a limiter from config. A disabled config admits
// everything immediately.
func NewLimiter(cfg config.RateLimitConfig, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.dailyReset = nextUTCMidnight(l.now())
	return l
}

// Execute admits op under the configured budgets, waiting as long as needed,
// then records the request before invoking op. Cancellation during the wait
// returns ctx.Err without recording anything.
func (l *Limiter) Execute(ctx context.Context, estimatedTokens int, op func(context.Context) error) error {
	if !l.cfg.Enabled {
		return op(ctx)
	}

	for {
		wait, reason := l.admit(estimatedTokens)
		if wait <= 0 {
			break
		}
		l.logger.Debug("rate limit wait",
			"wait", wait,
			"reason", reason)
		if l.observer != nil {
			l.observer(wait, reason)
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return op(ctx)
}

// admit computes the wait for one admission attempt and, when the wait is
// zero, records the request inside the same critical section.
func (l *Limiter) admit(estimatedTokens int) (time.Duration, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	wait, reason := l.waitTimeLocked(now, estimatedTokens)
	if wait > 0 {
		return wait, reason
	}

	l.requests = append(l.requests, now)
	l.tokens = append(l.tokens, tokenRecord{at: now, tokens: estimatedTokens})
	l.dailyCount++
	return 0, ""
}

// WaitTime returns how long the next request would wait, without admitting it.
func (l *Limiter) WaitTime(estimatedTokens int) time.Duration {
	if !l.cfg.Enabled {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.cleanup(now)
	wait, _ := l.waitTimeLocked(now, estimatedTokens)
	return wait
}

// CanProceed reports whether the next request would be admitted immediately.
func (l *Limiter) CanProceed(estimatedTokens int) bool {
	return l.WaitTime(estimatedTokens) <= 0
}

// RemainingRequestsPerMinute returns how many requests fit in the current
// minute window.
func (l *Limiter) RemainingRequestsPerMinute() int {
	if !l.cfg.Enabled {
		return l.cfg.RequestsPerMinute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(l.now())
	remaining := l.cfg.RequestsPerMinute - len(l.requests)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CurrentRequestsPerMinute returns how many requests occupy the current
// minute window, synthetic backfill included.
func (l *Limiter) CurrentRequestsPerMinute() int {
	if !l.cfg.Enabled {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanup(l.now())
	return len(l.requests)
}

// RecordServerRateLimit backfills the request window with synthetic entries
// so local admission mirrors server pressure. The synthetic timestamps are
// placed so the window frees up roughly when retryAfter elapses.
func (l *Limiter) RecordServerRateLimit(retryAfter time.Duration) {
	if !l.cfg.Enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	if retryAfter > window {
		retryAfter = window
	}
	synthetic := now.Add(retryAfter - window)
	for len(l.requests) < l.cfg.RequestsPerMinute {
		l.requests = append(l.requests, synthetic)
	}
	// Keep the window sorted so the oldest entry stays at index 0.
	sort.Slice(l.requests, func(i, j int) bool {
		return l.requests[i].Before(l.requests[j])
	})
}

func (l *Limiter) waitTimeLocked(now time.Time, estimatedTokens int) (time.Duration, string) {
	if l.dailyCount >= l.cfg.RequestsPerDay {
		return 24 * time.Hour, ReasonRequestsPerDay
	}

	if len(l.requests) >= l.cfg.RequestsPerMinute {
		return l.requests[0].Add(window).Sub(now), ReasonRequestsPerMinute
	}

	if len(l.tokens) > 0 {
		inWindow := 0
		for _, rec := range l.tokens {
			inWindow += rec.tokens
		}
		if inWindow+estimatedTokens > l.cfg.TokensPerMinute {
			return l.tokens[0].at.Add(window).Sub(now), ReasonTokensPerMinute
		}
	}

	return 0, ""
}

// cleanup drops expired window records and resets the daily counter when UTC
// midnight has passed. Callers hold l.mu.
func (l *Limiter) cleanup(now time.Time) {
	cutoff := now.Add(-window)

	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	l.requests = l.requests[i:]

	j := 0
	for j < len(l.tokens) && !l.tokens[j].at.After(cutoff) {
		j++
	}
	l.tokens = l.tokens[j:]

	if !now.Before(l.dailyReset) {
		l.dailyCount = 0
		l.dailyReset = nextUTCMidnight(now)
	}
}

func nextUTCMidnight(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day()+1, 0, 0, 0, 0, time.UTC)
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
