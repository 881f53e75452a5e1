package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genui-go/genui/pkg/config"
	"github.com/genui-go/genui/pkg/metrics"
	"github.com/genui-go/genui/pkg/protocol"
)

func retryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFactor:      0.1,
	}
}

func noSleep(p *RetryPolicy) {
	p.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestShouldRetryClassification(t *testing.T) {
	p := NewRetryPolicy(retryConfig())

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{"nil error", nil, 1, false},
		{"attempts exhausted", timeoutError{}, 3, false},
		{"retryable flag true", protocol.ErrorEvent{Kind: protocol.ErrorKindServer, Retryable: true}, 1, true},
		{"retryable flag false", protocol.ErrorEvent{Kind: protocol.ErrorKindValidation, Retryable: false}, 1, false},
		{"net timeout", timeoutError{}, 1, true},
		{"wrapped net timeout", fmt.Errorf("request: %w", timeoutError{}), 2, true},
		{"deadline exceeded", context.DeadlineExceeded, 1, true},
		{"cancellation", context.Canceled, 1, false},
		{"plain error", errors.New("boom"), 1, false},
		{"circuit open", &CircuitOpenError{RecoveryTime: time.Now()}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestDelayBounds(t *testing.T) {
	p := NewRetryPolicy(retryConfig())

	for attempt := 1; attempt <= 10; attempt++ {
		base := time.Duration(float64(time.Second) * pow(2.0, attempt-1))
		if base > 30*time.Second {
			base = 30 * time.Second
		}
		for i := 0; i < 20; i++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.9))
			assert.LessOrEqual(t, d, time.Duration(float64(base)*1.1))
		}
	}
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	collector := metrics.NewCollector(metrics.WithAggregation())
	defer collector.Close()
	p := NewRetryPolicy(retryConfig(), WithRetryCollector(collector), noSleep)

	calls := 0
	err := p.Do(context.Background(), "r1", func(context.Context) error {
		calls++
		if calls < 3 {
			return timeoutError{}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(2), collector.Stats().RetryCount)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := NewRetryPolicy(retryConfig(), noSleep)

	calls := 0
	err := p.Do(context.Background(), "r1", func(context.Context) error {
		calls++
		return timeoutError{}
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoNonRetryableFailsFast(t *testing.T) {
	p := NewRetryPolicy(retryConfig(), noSleep)

	calls := 0
	err := p.Do(context.Background(), "r1", func(context.Context) error {
		calls++
		return protocol.ErrorEvent{Kind: protocol.ErrorKindAuthentication, Message: "bad key"}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	p := NewRetryPolicy(retryConfig())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := p.Do(ctx, "r1", func(context.Context) error {
		calls++
		return timeoutError{}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
