package metrics

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Stats is a point-in-time aggregate of everything the collector has seen.
type Stats struct {
	TotalRequests         int64
	SuccessCount          int64
	FailureCount          int64
	SuccessRate           float64
	LatencyP50            time.Duration
	LatencyP95            time.Duration
	LatencyP99            time.Duration
	RateLimitCount        int64
	RetryCount            int64
	BreakerOpenCount      int64
	DedupCount            int64
	StreamInactivityCount int64
}

const reservoirSize = 1024

// aggregator keeps rolling counters plus a fixed-size latency reservoir so
// percentile memory stays bounded however long the process runs.
type aggregator struct {
	mu sync.Mutex

	totalRequests    int64
	successCount     int64
	failureCount     int64
	rateLimitCount   int64
	retryCount       int64
	breakerOpenCount int64
	inactivityCount  int64

	latencies []time.Duration
	seen      int64
	rng       *rand.Rand
}

func newAggregator() *aggregator {
	return &aggregator{
		latencies: make([]time.Duration, 0, reservoirSize),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (a *aggregator) record(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev := e.(type) {
	case RequestStart:
		a.totalRequests++
	case RequestSuccess:
		a.successCount++
		a.observeLatency(ev.Duration)
	case RequestFailure:
		a.failureCount++
		a.observeLatency(ev.Duration)
	case Latency:
		a.observeLatency(ev.Duration)
	case RateLimit:
		a.rateLimitCount++
	case RetryAttempt:
		a.retryCount++
	case BreakerStateChange:
		if ev.To == "open" {
			a.breakerOpenCount++
		}
	case StreamInactivity:
		a.inactivityCount++
	}
}

// observeLatency is reservoir sampling: every observation has an equal
// chance of being retained once the reservoir is full.
func (a *aggregator) observeLatency(d time.Duration) {
	a.seen++
	if len(a.latencies) < reservoirSize {
		a.latencies = append(a.latencies, d)
		return
	}
	if i := a.rng.Int63n(a.seen); i < reservoirSize {
		a.latencies[i] = d
	}
}

func (a *aggregator) snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		TotalRequests:         a.totalRequests,
		SuccessCount:          a.successCount,
		FailureCount:          a.failureCount,
		RateLimitCount:        a.rateLimitCount,
		RetryCount:            a.retryCount,
		BreakerOpenCount:      a.breakerOpenCount,
		StreamInactivityCount: a.inactivityCount,
	}
	if finished := a.successCount + a.failureCount; finished > 0 {
		s.SuccessRate = float64(a.successCount) / float64(finished)
	}

	if len(a.latencies) > 0 {
		sorted := make([]time.Duration, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		s.LatencyP50 = percentile(sorted, 0.50)
		s.LatencyP95 = percentile(sorted, 0.95)
		s.LatencyP99 = percentile(sorted, 0.99)
	}
	return s
}

// percentile uses the nearest-rank method.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
