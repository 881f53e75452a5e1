package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultGateDelay is used when a 429 response carries no Retry-After.
const DefaultGateDelay = 60 * time.Second

type queuedCall struct {
	ctx  context.Context
	op   func() error
	done chan error
}

// Gate is the reactive half of rate limiting. It is normally transparent;
// after a server 429 it holds every call in a FIFO queue until the
// Retry-After timer fires, then drains the queue in order.
type Gate struct {
	mu           sync.Mutex
	limitedUntil time.Time
	queue        []*queuedCall
	timer        *time.Timer
	defaultDelay time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the gate logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) { g.logger = logger }
}

// WithGateClock overrides the time source.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// NewGate creates an open gate.
func NewGate(opts ...GateOption) *Gate {
	g := &Gate{
		defaultDelay: DefaultGateDelay,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do runs op immediately when the gate is open, otherwise queues it until
// the limit expires. The returned error is op's error, or ctx.Err when the
// context ends first.
func (g *Gate) Do(ctx context.Context, op func() error) error {
	g.mu.Lock()
	if !g.limitedLocked() {
		g.mu.Unlock()
		return op()
	}

	call := &queuedCall{ctx: ctx, op: op, done: make(chan error, 1)}
	g.queue = append(g.queue, call)
	g.mu.Unlock()

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limit closes the gate for retryAfter, or the default delay when retryAfter
// is nil. A longer existing limit is never shortened.
func (g *Gate) Limit(retryAfter *time.Duration) {
	delay := g.defaultDelay
	if retryAfter != nil {
		delay = *retryAfter
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	until := g.now().Add(delay)
	if until.Before(g.limitedUntil) {
		return
	}
	g.limitedUntil = until

	g.logger.Warn("rate limit gate closed", "until", until)

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(delay, g.drain)
}

// IsLimited reports whether calls are currently being queued.
func (g *Gate) IsLimited() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limitedLocked()
}

// QueueLen returns the number of queued calls.
func (g *Gate) QueueLen() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func (g *Gate) limitedLocked() bool {
	return g.now().Before(g.limitedUntil)
}

// drain reopens the gate and runs queued calls in FIFO order. A failing or
// panicking call never stops the drain.
func (g *Gate) drain() {
	g.mu.Lock()
	if g.limitedLocked() {
		// The limit was extended after this timer was armed.
		g.mu.Unlock()
		return
	}
	pending := g.queue
	g.queue = nil
	g.timer = nil
	g.mu.Unlock()

	g.logger.Info("rate limit gate reopened", "queued", len(pending))

	for _, call := range pending {
		if call.ctx.Err() != nil {
			call.done <- call.ctx.Err()
			continue
		}
		call.done <- runQueued(call.op)
	}
}

func runQueued(op func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queued call panicked: %v", r)
		}
	}()
	return op()
}
