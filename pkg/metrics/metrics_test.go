package metrics

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAdapter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingAdapter) Handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAdapter) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func TestCollectorBroadcast(t *testing.T) {
	c := NewCollector()
	defer c.Close()

	a := &recordingAdapter{}
	b := &recordingAdapter{}
	c.Subscribe(a)
	c.Subscribe(b)

	c.Emit(RequestStart{Timestamp: time.Now(), RequestID: "r1", Model: "m"})
	c.Emit(RequestSuccess{Timestamp: time.Now(), RequestID: "r1", Duration: time.Second})

	require.Eventually(t, func() bool {
		return len(a.snapshot()) == 2 && len(b.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, TypeRequestStart, a.snapshot()[0].Type())
	assert.Equal(t, TypeRequestSuccess, a.snapshot()[1].Type())
}

func TestCollectorUnsubscribe(t *testing.T) {
	c := NewCollector()
	defer c.Close()

	a := &recordingAdapter{}
	unsubscribe := c.Subscribe(a)

	c.Emit(RateLimit{Timestamp: time.Now(), Wait: time.Second, Reason: "requests_per_minute"})
	unsubscribe()
	c.Emit(RateLimit{Timestamp: time.Now(), Wait: time.Second, Reason: "requests_per_minute"})

	// The unsubscribe drained the first event; the second never arrives.
	assert.Len(t, a.snapshot(), 1)
}

func TestCollectorPanickingAdapterIsolated(t *testing.T) {
	c := NewCollector()
	defer c.Close()

	healthy := &recordingAdapter{}
	c.Subscribe(AdapterFunc(func(Event) { panic("bad adapter") }))
	c.Subscribe(healthy)

	for i := 0; i < 3; i++ {
		c.Emit(RetryAttempt{Timestamp: time.Now(), Attempt: i + 1, Delay: time.Second})
	}

	require.Eventually(t, func() bool {
		return len(healthy.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestCollectorAggregation(t *testing.T) {
	c := NewCollector(WithAggregation())
	defer c.Close()

	now := time.Now()
	c.Emit(RequestStart{Timestamp: now, RequestID: "a"})
	c.Emit(RequestStart{Timestamp: now, RequestID: "b"})
	c.Emit(RequestStart{Timestamp: now, RequestID: "c"})
	c.Emit(RequestSuccess{Timestamp: now, RequestID: "a", Duration: 100 * time.Millisecond})
	c.Emit(RequestSuccess{Timestamp: now, RequestID: "b", Duration: 300 * time.Millisecond})
	c.Emit(RequestFailure{Timestamp: now, RequestID: "c", Duration: 50 * time.Millisecond, ErrorKind: "server"})
	c.Emit(RateLimit{Timestamp: now, Wait: time.Second})
	c.Emit(BreakerStateChange{Timestamp: now, From: "closed", To: "open"})
	c.Emit(BreakerStateChange{Timestamp: now, From: "open", To: "half-open"})
	c.Emit(StreamInactivity{Timestamp: now, Idle: time.Minute})

	stats := c.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(2), stats.SuccessCount)
	assert.Equal(t, int64(1), stats.FailureCount)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.Equal(t, int64(1), stats.RateLimitCount)
	assert.Equal(t, int64(1), stats.BreakerOpenCount)
	assert.Equal(t, int64(1), stats.StreamInactivityCount)
	assert.Equal(t, 100*time.Millisecond, stats.LatencyP50)
	assert.Equal(t, 300*time.Millisecond, stats.LatencyP99)
}

func TestCollectorStatsWithoutAggregation(t *testing.T) {
	c := NewCollector()
	defer c.Close()
	c.Emit(RequestStart{Timestamp: time.Now()})
	assert.Zero(t, c.Stats())
}

func TestFlattenAndExportAdapter(t *testing.T) {
	var got map[string]any
	a := &ExportAdapter{
		Service:     "genui",
		Environment: "test",
		Tags:        map[string]string{"region": "eu"},
		Deliver:     func(m map[string]any) { got = m },
	}

	a.Handle(RetryAttempt{
		Timestamp: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		RequestID: "r9",
		Attempt:   2,
		Delay:     1500 * time.Millisecond,
		Reason:    "server",
	})

	require.NotNil(t, got)
	assert.Equal(t, "retry_attempt", got["event"])
	assert.Equal(t, "genui", got["service"])
	assert.Equal(t, "test", got["environment"])
	assert.Equal(t, "eu", got["tag.region"])
	assert.Equal(t, "r9", got["request_id"])
	assert.Equal(t, 2, got["attempt"])
	assert.Equal(t, 1500.0, got["delay_ms"])
}

func TestFlattenCarriesBreakerNameAndRateLimitRequest(t *testing.T) {
	got := Flatten(BreakerStateChange{
		Timestamp: time.Now(),
		Name:      "claude-sonnet-4-20250514",
		From:      "closed",
		To:        "open",
	})
	assert.Equal(t, "claude-sonnet-4-20250514", got["name"])
	assert.Equal(t, "closed", got["from"])
	assert.Equal(t, "open", got["to"])

	got = Flatten(RateLimit{Timestamp: time.Now(), RequestID: "r3", Wait: 2 * time.Second, Reason: "server_429"})
	assert.Equal(t, "r3", got["request_id"])
	assert.Equal(t, 2000.0, got["wait_ms"])
}

func TestBatchingAdapterFlushOnSize(t *testing.T) {
	inner := &recordingAdapter{}
	b := NewBatchingAdapter(inner, 3, time.Hour)

	for i := 0; i < 2; i++ {
		b.Handle(Latency{Timestamp: time.Now(), Duration: time.Second})
	}
	assert.Empty(t, inner.snapshot())

	b.Handle(Latency{Timestamp: time.Now(), Duration: time.Second})
	assert.Len(t, inner.snapshot(), 3)
}

func TestBatchingAdapterFlushOnInterval(t *testing.T) {
	inner := &recordingAdapter{}
	b := NewBatchingAdapter(inner, 100, 20*time.Millisecond)

	b.Handle(Latency{Timestamp: time.Now(), Duration: time.Second})
	require.Eventually(t, func() bool {
		return len(inner.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatchingAdapterManualFlushAndClose(t *testing.T) {
	inner := &recordingAdapter{}
	b := NewBatchingAdapter(inner, 100, time.Hour)

	b.Handle(Latency{Timestamp: time.Now(), Duration: time.Second})
	b.Flush()
	assert.Len(t, inner.snapshot(), 1)

	b.Handle(Latency{Timestamp: time.Now(), Duration: time.Second})
	b.Close()
	assert.Len(t, inner.snapshot(), 2)

	// Events after Close are dropped.
	b.Handle(Latency{Timestamp: time.Now(), Duration: time.Second})
	assert.Len(t, inner.snapshot(), 2)
}

func TestOTelAdapterScrape(t *testing.T) {
	a, err := NewOTelAdapter("genui-test")
	require.NoError(t, err)
	defer func() { _ = a.Shutdown(t.Context()) }()

	a.Handle(RequestStart{Timestamp: time.Now(), Model: "claude-sonnet-4-20250514"})
	a.Handle(RequestSuccess{Timestamp: time.Now(), Duration: 250 * time.Millisecond})
	a.Handle(RequestFailure{Timestamp: time.Now(), Duration: time.Second, ErrorKind: "server"})

	rec := httptest.NewRecorder()
	a.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	assert.Contains(t, string(body), "genui_requests_total")
	assert.Contains(t, string(body), "genui_request_duration_seconds")
}
