package metrics

import (
	"sync"
	"time"
)

// BatchingAdapter wraps another adapter and delivers events in batches of up
// to maxBatch, or whenever flushInterval elapses, whichever comes first.
type BatchingAdapter struct {
	inner         Adapter
	maxBatch      int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Event
	timer  *time.Timer
	closed bool
}

// NewBatchingAdapter wraps inner. maxBatch and flushInterval fall back to
// 50 events and 5s when non-positive.
func NewBatchingAdapter(inner Adapter, maxBatch int, flushInterval time.Duration) *BatchingAdapter {
	if maxBatch <= 0 {
		maxBatch = 50
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchingAdapter{
		inner:         inner,
		maxBatch:      maxBatch,
		flushInterval: flushInterval,
	}
}

func (b *BatchingAdapter) Handle(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.buffer = append(b.buffer, e)

	if len(b.buffer) >= b.maxBatch {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.deliver(batch)
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushInterval, func() { b.Flush() })
	}
	b.mu.Unlock()
}

// Flush delivers the current buffer immediately.
func (b *BatchingAdapter) Flush() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.deliver(batch)
}

// Close flushes and stops the adapter.
func (b *BatchingAdapter) Close() {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()
	b.deliver(batch)
}

// takeLocked hands back the buffer and disarms the timer. Callers hold b.mu.
func (b *BatchingAdapter) takeLocked() []Event {
	batch := b.buffer
	b.buffer = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return batch
}

func (b *BatchingAdapter) deliver(batch []Event) {
	for _, e := range batch {
		b.inner.Handle(e)
	}
}
