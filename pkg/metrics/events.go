package metrics

import "time"

// EventType discriminates Event variants.
type EventType string

const (
	TypeRequestStart       EventType = "request_start"
	TypeRequestSuccess     EventType = "request_success"
	TypeRequestFailure     EventType = "request_failure"
	TypeBreakerStateChange EventType = "circuit_breaker_state_change"
	TypeRetryAttempt       EventType = "retry_attempt"
	TypeRateLimit          EventType = "rate_limit"
	TypeLatency            EventType = "latency"
	TypeStreamInactivity   EventType = "stream_inactivity"
)

// Event is one observation emitted into the collector bus.
type Event interface {
	Type() EventType
	At() time.Time
}

// RequestStart marks the beginning of a dispatched request.
type RequestStart struct {
	Timestamp time.Time
	RequestID string
	Model     string
}

func (e RequestStart) Type() EventType { return TypeRequestStart }
func (e RequestStart) At() time.Time   { return e.Timestamp }

// RequestSuccess marks a request that completed normally.
type RequestSuccess struct {
	Timestamp time.Time
	RequestID string
	Duration  time.Duration
	Estimated int
}

func (e RequestSuccess) Type() EventType { return TypeRequestSuccess }
func (e RequestSuccess) At() time.Time   { return e.Timestamp }

// RequestFailure marks a request that ended in an error.
type RequestFailure struct {
	Timestamp time.Time
	RequestID string
	Duration  time.Duration
	ErrorKind string
}

func (e RequestFailure) Type() EventType { return TypeRequestFailure }
func (e RequestFailure) At() time.Time   { return e.Timestamp }

// BreakerStateChange records a transition of the named circuit breaker.
type BreakerStateChange struct {
	Timestamp time.Time
	Name      string
	From      string
	To        string
}

func (e BreakerStateChange) Type() EventType { return TypeBreakerStateChange }
func (e BreakerStateChange) At() time.Time   { return e.Timestamp }

// RetryAttempt records one backoff retry.
type RetryAttempt struct {
	Timestamp time.Time
	RequestID string
	Attempt   int
	Delay     time.Duration
	Reason    string
}

func (e RetryAttempt) Type() EventType { return TypeRetryAttempt }
func (e RetryAttempt) At() time.Time   { return e.Timestamp }

// RateLimit records a proactive admission wait or a server 429.
type RateLimit struct {
	Timestamp time.Time
	RequestID string
	Wait      time.Duration
	Reason    string
}

func (e RateLimit) Type() EventType { return TypeRateLimit }
func (e RateLimit) At() time.Time   { return e.Timestamp }

// Latency records an end-to-end request duration for percentile tracking.
type Latency struct {
	Timestamp time.Time
	RequestID string
	Duration  time.Duration
}

func (e Latency) Type() EventType { return TypeLatency }
func (e Latency) At() time.Time   { return e.Timestamp }

// StreamInactivity records a stream aborted for lack of activity.
type StreamInactivity struct {
	Timestamp time.Time
	RequestID string
	Idle      time.Duration
}

func (e StreamInactivity) Type() EventType { return TypeStreamInactivity }
func (e StreamInactivity) At() time.Time   { return e.Timestamp }
