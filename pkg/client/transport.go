package client

import (
	"context"
	"io"

	"github.com/genui-go/genui/pkg/config"
	"github.com/genui-go/genui/pkg/httpclient"
)

// frameSource yields framing events from one open model stream. Next
// returns io.EOF when the stream ends normally.
type frameSource interface {
	Next() (map[string]any, error)
	Close() error
}

// transport opens a streaming model call for one request.
type transport interface {
	open(ctx context.Context, req *ApiRequest) (frameSource, error)
}

// proxyTransport posts the wire request to an SSE-forwarding proxy.
type proxyTransport struct {
	endpoint string
	http     *httpclient.Client
}

func newProxyTransport(cfg *config.Config) *proxyTransport {
	opts := []httpclient.Option{
		// Streaming responses outlive any sane whole-request timeout; the
		// request context bounds lifetime instead.
		httpclient.WithTimeout(0),
	}
	if cfg.AuthToken != "" {
		opts = append(opts, httpclient.WithBearerToken(cfg.AuthToken))
	}
	return &proxyTransport{
		endpoint: cfg.ProxyEndpoint,
		http:     httpclient.New(opts...),
	}
}

func (t *proxyTransport) open(ctx context.Context, req *ApiRequest) (frameSource, error) {
	scanner, closer, err := t.http.Stream(ctx, t.endpoint, req.proxyBody())
	if err != nil {
		return nil, err
	}
	return &proxySource{scanner: scanner, closer: closer}, nil
}

type proxySource struct {
	scanner *httpclient.SSEScanner
	closer  io.Closer
}

func (s *proxySource) Next() (map[string]any, error) {
	return s.scanner.Next()
}

func (s *proxySource) Close() error {
	return s.closer.Close()
}
