package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genui-go/genui/pkg/protocol"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   protocol.ErrorKind
	}{
		{401, protocol.ErrorKindAuthentication},
		{403, protocol.ErrorKindAuthentication},
		{429, protocol.ErrorKindRateLimit},
		{500, protocol.ErrorKindServer},
		{529, protocol.ErrorKindServer},
		{400, protocol.ErrorKindValidation},
		{422, protocol.ErrorKindValidation},
		{418, protocol.ErrorKindValidation},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.status), "status %d", tt.status)
	}
}

func TestErrorFromResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 429,
		Header:     http.Header{"Retry-After": []string{"17"}},
		Body: io.NopCloser(strings.NewReader(
			`{"error":{"type":"rate_limit_error","message":"slow down"}}`)),
	}

	httpErr := ErrorFromResponse(resp)
	assert.Equal(t, 429, httpErr.StatusCode)
	assert.Equal(t, protocol.ErrorKindRateLimit, httpErr.Kind)
	assert.Equal(t, "slow down", httpErr.Message)
	assert.Equal(t, 17*time.Second, httpErr.RetryAfter)
	assert.True(t, httpErr.IsRetryable())

	event := httpErr.ErrorEvent()
	assert.Equal(t, protocol.ErrorKindRateLimit, event.Kind)
	assert.True(t, event.Retryable)
	assert.Equal(t, 17*time.Second, event.RetryAfter)
}

func TestErrorFromResponsePlainBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: 500,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("upstream exploded")),
	}
	httpErr := ErrorFromResponse(resp)
	assert.Equal(t, "upstream exploded", httpErr.Message)
	assert.True(t, httpErr.IsRetryable())
}

func TestErrorNotRetryable(t *testing.T) {
	resp := &http.Response{
		StatusCode: 401,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}
	httpErr := ErrorFromResponse(resp)
	assert.False(t, httpErr.IsRetryable())
	assert.Equal(t, "Unauthorized", httpErr.Message)
}

func TestParseRateLimitHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "30")
	h.Set("anthropic-ratelimit-requests-remaining", "12")
	h.Set("anthropic-ratelimit-input-tokens-remaining", "5000")
	h.Set("anthropic-ratelimit-requests-reset", "2026-08-25T12:00:00Z")

	info := ParseRateLimitHeaders(h)
	assert.Equal(t, 30*time.Second, info.RetryAfter)
	assert.Equal(t, 12, info.RequestsRemaining)
	assert.Equal(t, 5000, info.InputTokensRemaining)
	assert.Equal(t, -1, info.OutputTokensRemaining)
	assert.Equal(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC).Unix(), info.ResetTime)
}

func TestParseRateLimitHeadersEmpty(t *testing.T) {
	info := ParseRateLimitHeaders(http.Header{})
	assert.Zero(t, info.RetryAfter)
	assert.Equal(t, -1, info.RequestsRemaining)
}

func TestSSEScanner(t *testing.T) {
	stream := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start"}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
		``,
		`: keep-alive comment`,
		`data:`,
		`data: [DONE]`,
		`data: {"type":"never_reached"}`,
	}, "\n")

	s := NewSSEScanner(strings.NewReader(stream))

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "message_start", first["type"])

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "content_block_delta", second["type"])

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)

	// The scanner stays finished after [DONE].
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEScannerMalformedLine(t *testing.T) {
	s := NewSSEScanner(strings.NewReader("data: {not json}\n\ndata: {\"type\":\"ping\"}\n"))

	event, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "error", event["type"])
	errBody := event["error"].(map[string]any)
	assert.Equal(t, "parse_error", errBody["type"])

	// The stream keeps going after the bad line.
	event, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, "ping", event["type"])
}

func TestClientPostJSON(t *testing.T) {
	var gotAuth, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(200)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := New(WithBearerToken("secret"), WithHeader("x-extra", "1"))
	resp, err := c.PostJSON(context.Background(), server.URL, map[string]any{"model": "m"})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
}

func TestClientPostJSONErrorMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "5")
		w.WriteHeader(429)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"busy"}}`))
	}))
	defer server.Close()

	c := New()
	_, err := c.PostJSON(context.Background(), server.URL, map[string]any{})

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 429, httpErr.StatusCode)
	assert.Equal(t, 5*time.Second, httpErr.RetryAfter)
	assert.Equal(t, "busy", httpErr.Message)
}

func TestClientStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"type\":\"message_stop\"}\n\ndata: [DONE]\n"))
	}))
	defer server.Close()

	c := New()
	scanner, closer, err := c.Stream(context.Background(), server.URL, map[string]any{"stream": true})
	require.NoError(t, err)
	defer closer.Close()

	event, err := scanner.Next()
	require.NoError(t, err)
	assert.Equal(t, "message_stop", event["type"])

	_, err = scanner.Next()
	assert.ErrorIs(t, err, io.EOF)
}
