package dedup

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/genui-go/genui/pkg/config"
)

type entry struct {
	value   any
	err     error
	expires time.Time
}

// Deduplicator coalesces identical requests. Concurrent callers with the
// same key share one execution, and a completed result keeps answering for
// the same key until its expiry window passes.
type Deduplicator struct {
	cfg   config.DeduplicationConfig
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	dedupCount atomic.Int64
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithLogger sets the deduplicator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deduplicator) { d.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Deduplicator) { d.now = now }
}

// New creates a deduplicator from config.
func New(cfg config.DeduplicationConfig, opts ...Option) *Deduplicator {
	d := &Deduplicator{
		cfg:     cfg,
		entries: make(map[string]*entry),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Execute runs op under key. A live cached result within the window is
// returned directly; concurrent callers with the same key share a single
// in-flight execution. Expired entries are evicted on every call.
func (d *Deduplicator) Execute(ctx context.Context, key string, op func(context.Context) (any, error)) (any, error) {
	if !d.cfg.Enabled {
		return op(ctx)
	}

	d.mu.Lock()
	d.cleanupLocked()
	if e, ok := d.entries[key]; ok {
		d.mu.Unlock()
		d.dedupCount.Add(1)
		d.logger.Debug("deduplicated request", "key", key)
		return e.value, e.err
	}
	d.mu.Unlock()

	// singleflight reports shared=true for the executing caller too; only
	// the callers whose closure never ran were actually deduplicated.
	executed := false
	value, err, _ := d.group.Do(key, func() (any, error) {
		executed = true
		value, err := op(ctx)
		d.store(key, value, err)
		return value, err
	})
	if !executed {
		d.dedupCount.Add(1)
	}
	return value, err
}

// DedupCount returns how many calls were answered without running their op.
func (d *Deduplicator) DedupCount() int64 {
	return d.dedupCount.Load()
}

// Len returns the number of live cached entries.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cleanupLocked()
	return len(d.entries)
}

func (d *Deduplicator) store(key string, value any, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.entries[key]; !exists {
		d.order = append(d.order, key)
	}
	d.entries[key] = &entry{
		value:   value,
		err:     err,
		expires: d.now().Add(d.cfg.Window),
	}

	for len(d.entries) > d.cfg.MaxCacheSize && len(d.order) > 0 {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.entries, oldest)
	}
}

// cleanupLocked evicts expired entries. Callers hold d.mu.
func (d *Deduplicator) cleanupLocked() {
	now := d.now()
	kept := d.order[:0]
	for _, key := range d.order {
		e, ok := d.entries[key]
		if !ok {
			continue
		}
		if !e.expires.After(now) {
			delete(d.entries, key)
			continue
		}
		kept = append(kept, key)
	}
	d.order = kept
}
