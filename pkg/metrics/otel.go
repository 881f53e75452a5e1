package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelAdapter bridges the event bus to OpenTelemetry instruments backed by
// a Prometheus registry, so stats are scrapeable without any extra wiring.
type OTelAdapter struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	requests     metric.Int64Counter
	failures     metric.Int64Counter
	retries      metric.Int64Counter
	rateLimits   metric.Int64Counter
	breakerOpens metric.Int64Counter
	inactivity   metric.Int64Counter
	latency      metric.Float64Histogram
}

// NewOTelAdapter builds the meter provider and instruments.
func NewOTelAdapter(serviceName string) (*OTelAdapter, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	a := &OTelAdapter{provider: provider, registry: registry}

	if a.requests, err = meter.Int64Counter("genui_requests_total",
		metric.WithDescription("Requests dispatched")); err != nil {
		return nil, err
	}
	if a.failures, err = meter.Int64Counter("genui_request_failures_total",
		metric.WithDescription("Requests that ended in an error")); err != nil {
		return nil, err
	}
	if a.retries, err = meter.Int64Counter("genui_retries_total",
		metric.WithDescription("Backoff retry attempts")); err != nil {
		return nil, err
	}
	if a.rateLimits, err = meter.Int64Counter("genui_rate_limit_waits_total",
		metric.WithDescription("Admissions delayed by rate limiting")); err != nil {
		return nil, err
	}
	if a.breakerOpens, err = meter.Int64Counter("genui_circuit_breaker_opens_total",
		metric.WithDescription("Circuit breaker open transitions")); err != nil {
		return nil, err
	}
	if a.inactivity, err = meter.Int64Counter("genui_stream_inactivity_total",
		metric.WithDescription("Streams aborted for inactivity")); err != nil {
		return nil, err
	}
	if a.latency, err = meter.Float64Histogram("genui_request_duration_seconds",
		metric.WithDescription("End-to-end request duration"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *OTelAdapter) Handle(e Event) {
	ctx := context.Background()

	switch ev := e.(type) {
	case RequestStart:
		a.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("model", ev.Model)))
	case RequestSuccess:
		a.latency.Record(ctx, ev.Duration.Seconds(),
			metric.WithAttributes(attribute.String("outcome", "success")))
	case RequestFailure:
		a.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("error_kind", ev.ErrorKind)))
		a.latency.Record(ctx, ev.Duration.Seconds(),
			metric.WithAttributes(attribute.String("outcome", "failure")))
	case RetryAttempt:
		a.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", ev.Reason)))
	case RateLimit:
		a.rateLimits.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", ev.Reason)))
	case BreakerStateChange:
		if ev.To == "open" {
			a.breakerOpens.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", ev.Name)))
		}
	case StreamInactivity:
		a.inactivity.Add(ctx, 1)
	}
}

// HTTPHandler exposes the Prometheus scrape endpoint.
func (a *OTelAdapter) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (a *OTelAdapter) Shutdown(ctx context.Context) error {
	return a.provider.Shutdown(ctx)
}
