package metrics

import (
	"log/slog"
	"time"
)

// Sink receives one flattened event payload.
type Sink func(map[string]any)

// ExportAdapter flattens each event into a platform-neutral map, annotates
// it with service identity, and hands it to a user-supplied sink.
type ExportAdapter struct {
	Service     string
	Environment string
	Tags        map[string]string
	Deliver     Sink
}

func (a *ExportAdapter) Handle(e Event) {
	if a.Deliver == nil {
		return
	}
	payload := Flatten(e)
	payload["service"] = a.Service
	payload["environment"] = a.Environment
	for k, v := range a.Tags {
		payload["tag."+k] = v
	}
	a.Deliver(payload)
}

// Flatten converts a typed event into a flat map suitable for any export
// backend.
func Flatten(e Event) map[string]any {
	payload := map[string]any{
		"event":     string(e.Type()),
		"timestamp": e.At().UTC().Format(time.RFC3339Nano),
	}

	switch ev := e.(type) {
	case RequestStart:
		payload["request_id"] = ev.RequestID
		payload["model"] = ev.Model
	case RequestSuccess:
		payload["request_id"] = ev.RequestID
		payload["duration_ms"] = durationMs(ev.Duration)
		payload["estimated_tokens"] = ev.Estimated
	case RequestFailure:
		payload["request_id"] = ev.RequestID
		payload["duration_ms"] = durationMs(ev.Duration)
		payload["error_kind"] = ev.ErrorKind
	case BreakerStateChange:
		payload["name"] = ev.Name
		payload["from"] = ev.From
		payload["to"] = ev.To
	case RetryAttempt:
		payload["request_id"] = ev.RequestID
		payload["attempt"] = ev.Attempt
		payload["delay_ms"] = durationMs(ev.Delay)
		payload["reason"] = ev.Reason
	case RateLimit:
		payload["request_id"] = ev.RequestID
		payload["wait_ms"] = durationMs(ev.Wait)
		payload["reason"] = ev.Reason
	case Latency:
		payload["request_id"] = ev.RequestID
		payload["duration_ms"] = durationMs(ev.Duration)
	case StreamInactivity:
		payload["request_id"] = ev.RequestID
		payload["idle_ms"] = durationMs(ev.Idle)
	}
	return payload
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ConsoleAdapter logs every event through slog. Useful in development and
// as the smallest possible reference adapter.
type ConsoleAdapter struct {
	Logger *slog.Logger
}

func (a *ConsoleAdapter) Handle(e Event) {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := make([]any, 0, 8)
	for k, v := range Flatten(e) {
		if k == "event" {
			continue
		}
		attrs = append(attrs, k, v)
	}
	logger.Info("metric "+string(e.Type()), attrs...)
}
