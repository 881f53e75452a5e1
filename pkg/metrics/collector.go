package metrics

import (
	"log/slog"
	"sync"
	"time"
)

// Adapter receives every event emitted into a Collector it subscribes to.
// Handle runs on a dedicated goroutine per subscription; a panicking adapter
// loses that event only.
type Adapter interface {
	Handle(Event)
}

// AdapterFunc adapts a function to the Adapter interface.
type AdapterFunc func(Event)

func (f AdapterFunc) Handle(e Event) { f(e) }

const subscriberBuffer = 256

type subscriber struct {
	ch   chan Event
	quit chan struct{}
	wg   sync.WaitGroup
}

// Collector is a broadcast bus for metrics events. Emission never blocks on
// a slow subscriber: each subscription has its own buffered channel and
// events overflowing the buffer are dropped for that subscriber only.
type Collector struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool

	agg    *aggregator
	logger *slog.Logger
	now    func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithAggregation enables rolling counters and latency percentiles.
func WithAggregation() CollectorOption {
	return func(c *Collector) { c.agg = newAggregator() }
}

// WithCollectorLogger sets the collector logger.
func WithCollectorLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = logger }
}

// NewCollector creates an empty bus.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		subscribers: make(map[int]*subscriber),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers an adapter and returns its unsubscribe function.
// Unsubscribing waits for the adapter goroutine to finish.
func (c *Collector) Subscribe(adapter Adapter) func() {
	sub := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		quit: make(chan struct{}),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.subscribers[id] = sub
	c.mu.Unlock()

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for {
			select {
			case e := <-sub.ch:
				c.deliver(adapter, e)
			case <-sub.quit:
				// Drain whatever was buffered before the unsubscribe.
				for {
					select {
					case e := <-sub.ch:
						c.deliver(adapter, e)
					default:
						return
					}
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
			close(sub.quit)
			sub.wg.Wait()
		})
	}
}

// Emit broadcasts one event. It never blocks.
func (c *Collector) Emit(e Event) {
	if c == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	if c.agg != nil {
		c.agg.record(e)
	}

	for _, sub := range c.subscribers {
		select {
		case sub.ch <- e:
		default:
			c.logger.Debug("metrics subscriber buffer full, dropping event",
				"event", e.Type())
		}
	}
}

// Stats returns the aggregated view, or the zero value when aggregation is
// disabled.
func (c *Collector) Stats() Stats {
	if c == nil || c.agg == nil {
		return Stats{}
	}
	return c.agg.snapshot()
}

// Close detaches all subscribers and stops accepting events.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := make([]*subscriber, 0, len(c.subscribers))
	for id, sub := range c.subscribers {
		subs = append(subs, sub)
		delete(c.subscribers, id)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		close(sub.quit)
		sub.wg.Wait()
	}
}

func (c *Collector) deliver(adapter Adapter, e Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("metrics adapter panicked",
				"event", e.Type(),
				"panic", r)
		}
	}()
	adapter.Handle(e)
}

var (
	defaultMu        sync.RWMutex
	defaultCollector *Collector
)

// Default returns the process-wide collector, creating an aggregating one on
// first use.
func Default() *Collector {
	defaultMu.RLock()
	c := defaultCollector
	defaultMu.RUnlock()
	if c != nil {
		return c
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultCollector == nil {
		defaultCollector = NewCollector(WithAggregation())
	}
	return defaultCollector
}

// SetDefault replaces the process-wide collector.
func SetDefault(c *Collector) {
	defaultMu.Lock()
	defaultCollector = c
	defaultMu.Unlock()
}
