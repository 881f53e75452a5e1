// Package client dispatches generative-UI requests: it wraps each model
// call in the rate-limit, dedup, breaker and retry envelope, parses the
// reply stream, answers catalog search tools locally and fans the results
// out to the widget, text and error streams.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/genui-go/genui/pkg/catalog"
	"github.com/genui-go/genui/pkg/config"
	"github.com/genui-go/genui/pkg/convert"
	"github.com/genui-go/genui/pkg/dedup"
	"github.com/genui-go/genui/pkg/httpclient"
	"github.com/genui-go/genui/pkg/metrics"
	"github.com/genui-go/genui/pkg/protocol"
	"github.com/genui-go/genui/pkg/ratelimit"
	"github.com/genui-go/genui/pkg/resilience"
	"github.com/genui-go/genui/pkg/streaming"
	"github.com/genui-go/genui/pkg/utils"
)

const (
	streamBuffer = 64
	// A reply that keeps asking for more tools has to converge eventually.
	maxToolTurns = 8
)

// Client is the request dispatcher. One client serves one conversation
// session; requests are strictly sequential.
type Client struct {
	cfg *config.Config

	limiter     *ratelimit.Limiter
	gate        *ratelimit.Gate
	deduper     *dedup.Deduplicator
	retry       *resilience.RetryPolicy
	breaker     *resilience.CircuitBreaker
	collector   *metrics.Collector
	index       *catalog.Index
	interceptor *catalog.Interceptor
	counter     *utils.TokenCounter
	transport   transport
	logger      *slog.Logger

	lifetime context.Context
	cancel   context.CancelFunc
	inFlight atomic.Bool
	disposed sync.Once

	// reqID is the active request id. Written after the in-flight gate is
	// taken and read only from the request goroutine.
	reqID string

	widgets chan convert.SurfaceMessage
	texts   chan string
	errs    chan protocol.ErrorEvent
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCollector routes metrics into the given bus instead of the default.
func WithCollector(c *metrics.Collector) ClientOption {
	return func(cl *Client) { cl.collector = c }
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = logger }
}

func withTransport(t transport) ClientOption {
	return func(cl *Client) { cl.transport = t }
}

// New creates a dispatcher from config. The config is defaulted and
// validated in place.
func New(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:       cfg,
		collector: metrics.Default(),
		logger:    slog.Default(),
		lifetime:  lifetime,
		cancel:    cancel,
		widgets:   make(chan convert.SurfaceMessage, streamBuffer),
		texts:     make(chan string, streamBuffer),
		errs:      make(chan protocol.ErrorEvent, streamBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.limiter = ratelimit.NewLimiter(*cfg.RateLimit,
		ratelimit.WithLimiterLogger(c.logger),
		ratelimit.WithWaitObserver(func(wait time.Duration, reason string) {
			c.collector.Emit(metrics.RateLimit{
				Timestamp: time.Now(),
				RequestID: c.reqID,
				Wait:      wait,
				Reason:    reason,
			})
		}))
	c.gate = ratelimit.NewGate(ratelimit.WithGateLogger(c.logger))
	c.deduper = dedup.New(*cfg.Deduplication, dedup.WithLogger(c.logger))
	c.retry = resilience.NewRetryPolicy(*cfg.Retry,
		resilience.WithRetryCollector(c.collector),
		resilience.WithRetryLogger(c.logger))
	if !cfg.DisableCircuitBreaker {
		c.breaker = resilience.NewCircuitBreaker(*cfg.CircuitBreaker,
			resilience.WithBreakerName(cfg.Model),
			resilience.WithBreakerCollector(c.collector),
			resilience.WithBreakerLogger(c.logger))
	}

	c.index = catalog.NewIndex()
	c.interceptor = catalog.NewInterceptor(c.index,
		catalog.WithMaxLoadedTools(cfg.MaxLoadedToolsPerSession),
		catalog.WithLogger(c.logger))

	// Token counting is an estimate feeding rate limits; run without it if
	// the encoding cannot be loaded.
	if counter, err := utils.NewTokenCounter(cfg.Model); err == nil {
		c.counter = counter
	} else {
		c.logger.Warn("token encoding unavailable, falling back to length estimate", "error", err)
	}

	if c.transport == nil {
		switch cfg.Mode {
		case config.ModeProxy:
			c.transport = newProxyTransport(cfg)
		default:
			c.transport = newDirectTransport(cfg)
		}
	}
	return c, nil
}

// RegisterTools adds widget tool schemas to the catalog.
func (c *Client) RegisterTools(schemas ...protocol.ToolSchema) {
	c.index.AddAll(schemas)
}

// Widgets is the surface-mutation output stream.
func (c *Client) Widgets() <-chan convert.SurfaceMessage { return c.widgets }

// Text is the free-form assistant text output stream.
func (c *Client) Text() <-chan string { return c.texts }

// Errors is the terminal-error output stream.
func (c *Client) Errors() <-chan protocol.ErrorEvent { return c.errs }

// Tools returns the currently-effective tool list: the control tools plus
// either every registered widget tool, or in search mode the two search
// tools and whatever load_tools has pulled in this session.
func (c *Client) Tools() []protocol.ToolSchema {
	tools := catalog.ControlTools()
	if !c.cfg.EnableToolSearch {
		return append(tools, c.index.Schemas()...)
	}

	tools = append(tools, catalog.SearchTools()...)
	for _, item := range c.index.GetByNames(c.interceptor.LoadedTools()) {
		tools = append(tools, item.Schema)
	}
	return tools
}

// SendRequest converts the user message plus optional history into a wire
// request, runs the resilience envelope and streams the reply into the
// output channels. Exactly one of Complete-without-error or one ErrorEvent
// terminates each call. A second call while one is running fails
// immediately.
func (c *Client) SendRequest(ctx context.Context, message string, history []convert.Message) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		ev := protocol.ErrorEvent{
			Kind:    protocol.ErrorKindValidation,
			Message: "another request is already in flight",
		}
		c.pushError(ev)
		return ev
	}
	defer c.inFlight.Store(false)

	ctx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()
	stop := context.AfterFunc(c.lifetime, cancelReq)
	defer stop()
	if c.cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancelTimeout()
	}

	requestID := uuid.NewString()
	c.reqID = requestID
	start := time.Now()
	c.collector.Emit(metrics.RequestStart{
		Timestamp: start,
		RequestID: requestID,
		Model:     c.cfg.Model,
	})

	system, msgs := convert.ExtractSystemContext(c.buildHistory(message, history))
	err := c.runConversation(ctx, requestID, system, msgs)

	duration := time.Since(start)
	if err != nil {
		ev := toErrorEvent(err)
		c.collector.Emit(metrics.RequestFailure{
			Timestamp: time.Now(),
			RequestID: requestID,
			Duration:  duration,
			ErrorKind: string(ev.Kind),
		})
		c.pushError(ev)
		return err
	}

	c.collector.Emit(metrics.RequestSuccess{
		Timestamp: time.Now(),
		RequestID: requestID,
		Duration:  duration,
	})
	c.collector.Emit(metrics.Latency{
		Timestamp: time.Now(),
		RequestID: requestID,
		Duration:  duration,
	})
	return nil
}

// Dispose cancels any active request, waits for it to drain and closes the
// three output streams. The client is unusable afterwards.
func (c *Client) Dispose() {
	c.disposed.Do(func() {
		c.cancel()
		for c.inFlight.Load() {
			time.Sleep(5 * time.Millisecond)
		}
		close(c.widgets)
		close(c.texts)
		close(c.errs)
	})
}

func (c *Client) buildHistory(message string, history []convert.Message) []convert.Message {
	var msgs []convert.Message
	if c.cfg.IncludeHistory {
		msgs = append(msgs, convert.Prune(history, c.cfg.MaxHistoryMessages)...)
	}
	return append(msgs, convert.Message{Role: convert.RoleUser, Content: message})
}

// toolExchange is one locally answered tool call awaiting its result turn.
type toolExchange struct {
	ID     string
	Name   string
	Input  map[string]any
	Result string
}

// runConversation issues model turns until a reply needs no local tool
// answers.
func (c *Client) runConversation(ctx context.Context, requestID, system string, msgs []convert.Message) error {
	for turn := 0; turn < maxToolTurns; turn++ {
		req := &ApiRequest{
			Messages:      msgs,
			MaxTokens:     c.cfg.MaxTokens,
			System:        system,
			Tools:         c.Tools(),
			Model:         c.cfg.Model,
			Temperature:   c.cfg.Temperature,
			TopP:          c.cfg.TopP,
			TopK:          c.cfg.TopK,
			StopSequences: c.cfg.StopSequences,
		}

		exchanges, err := c.dispatch(ctx, requestID, req)
		if err != nil {
			return err
		}
		if len(exchanges) == 0 {
			return nil
		}

		msgs = appendExchanges(msgs, exchanges)
	}
	return fmt.Errorf("tool loop did not converge after %d turns", maxToolTurns)
}

// dispatch runs one model turn inside the rate limit, dedup, breaker and
// retry envelope, in that order.
func (c *Client) dispatch(ctx context.Context, requestID string, req *ApiRequest) ([]toolExchange, error) {
	estimated := req.estimateTokens(c.counter)

	var exchanges []toolExchange
	err := c.limiter.Execute(ctx, estimated, func(ctx context.Context) error {
		return c.gate.Do(ctx, func() error {
			key := dedup.Key(req.proxyBody(), c.cfg.Deduplication.HashMessages)
			result, err := c.deduper.Execute(ctx, key, func(ctx context.Context) (any, error) {
				return c.guardedStream(ctx, requestID, req)
			})
			if ex, ok := result.([]toolExchange); ok {
				exchanges = ex
			}
			return err
		})
	})
	return exchanges, err
}

// guardedStream wraps one streaming attempt with the breaker and retry
// policy. Once events have reached the output streams a failure is
// terminal: replaying a half-delivered reply would duplicate widgets.
func (c *Client) guardedStream(ctx context.Context, requestID string, req *ApiRequest) ([]toolExchange, error) {
	var exchanges []toolExchange

	err := c.retry.Do(ctx, requestID, func(ctx context.Context) error {
		if c.breaker != nil {
			if err := c.breaker.CheckState(); err != nil {
				return err
			}
		}

		ex, emitted, err := c.streamOnce(ctx, requestID, req)
		if err != nil {
			if c.breaker != nil && ctx.Err() == nil {
				c.breaker.RecordFailure()
			}
			if emitted {
				return &terminalError{err: err}
			}
			// When this failure tripped the breaker, surface the open
			// circuit rather than the final upstream error.
			if c.breaker != nil {
				if openErr := c.breaker.CheckState(); openErr != nil {
					return openErr
				}
			}
			return err
		}

		if c.breaker != nil {
			c.breaker.RecordSuccess()
		}
		exchanges = ex
		return nil
	})
	return exchanges, err
}

// streamOnce opens the transport, feeds framing events through the parser
// and routes the typed events to the output streams. It reports whether
// anything was emitted so the retry wrapper can tell a clean failure from a
// torn one.
func (c *Client) streamOnce(ctx context.Context, requestID string, req *ApiRequest) ([]toolExchange, bool, error) {
	source, err := c.transport.open(ctx, req)
	if err != nil {
		c.noteHTTPError(requestID, err)
		return nil, false, err
	}
	defer source.Close()

	var timedOut atomic.Bool
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	inactivity := c.cfg.StreamInactivityTimeout
	timer := time.AfterFunc(inactivity, func() {
		timedOut.Store(true)
		cancelStream()
		_ = source.Close()
	})
	defer timer.Stop()

	var exchanges []toolExchange
	parser := streaming.NewParser(
		streaming.WithLogger(c.logger),
		streaming.WithToolUseFunc(func(id, name string, input map[string]any) {
			if ex, ok := c.intercept(id, name, input); ok {
				exchanges = append(exchanges, ex)
			}
		}))

	emitted := false
	for {
		frame, err := source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream ended without message_stop; everything decoded
				// still counts.
				return exchanges, emitted, nil
			}
			if timedOut.Load() {
				return nil, emitted, c.inactivityError(requestID, inactivity)
			}
			if streamCtx.Err() != nil {
				return nil, emitted, streamCtx.Err()
			}
			return nil, emitted, err
		}
		if timedOut.Load() {
			return nil, emitted, c.inactivityError(requestID, inactivity)
		}
		timer.Reset(inactivity)

		for _, ev := range parser.Feed(frame) {
			switch e := ev.(type) {
			case protocol.TextDelta:
				emitted = true
				c.pushText(e.Text)
			case protocol.WidgetMessageEvent:
				emitted = true
				c.pushWidget(convert.FromWidgetMessage(e.Message))
			case protocol.Complete:
				return exchanges, emitted, nil
			case protocol.ErrorEvent:
				return nil, emitted, e
			}
		}
	}
}

// intercept answers a search tool locally. Unknown tool names are ignored.
func (c *Client) intercept(id, name string, input map[string]any) (toolExchange, bool) {
	if !c.interceptor.Intercepts(name) {
		c.logger.Debug("ignoring unknown tool call", "tool", name)
		return toolExchange{}, false
	}

	result, err := c.interceptor.Execute(name, input)
	var content string
	if err != nil {
		content = fmt.Sprintf(`{"error":%q}`, err.Error())
	} else if data, marshalErr := json.Marshal(result); marshalErr == nil {
		content = string(data)
	} else {
		content = fmt.Sprintf(`{"error":%q}`, marshalErr.Error())
	}

	return toolExchange{ID: id, Name: name, Input: input, Result: content}, true
}

// noteHTTPError lets a server 429 push back on both rate-limit layers.
func (c *Client) noteHTTPError(requestID string, err error) {
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Kind != protocol.ErrorKindRateLimit {
		return
	}

	retryAfter := httpErr.RetryAfter
	if retryAfter > 0 {
		c.gate.Limit(&retryAfter)
		c.limiter.RecordServerRateLimit(retryAfter)
	} else {
		c.gate.Limit(nil)
		c.limiter.RecordServerRateLimit(ratelimit.DefaultGateDelay)
	}
	c.collector.Emit(metrics.RateLimit{
		Timestamp: time.Now(),
		RequestID: requestID,
		Wait:      retryAfter,
		Reason:    "server_429",
	})
}

func (c *Client) inactivityError(requestID string, timeout time.Duration) error {
	c.collector.Emit(metrics.StreamInactivity{
		Timestamp: time.Now(),
		RequestID: requestID,
		Idle:      timeout,
	})
	return protocol.ErrorEvent{
		Kind:    protocol.ErrorKindTimeout,
		Message: fmt.Sprintf("no stream activity for %v", timeout),
	}
}

func (c *Client) pushText(text string) {
	select {
	case c.texts <- text:
	case <-c.lifetime.Done():
	}
}

func (c *Client) pushWidget(msg convert.SurfaceMessage) {
	select {
	case c.widgets <- msg:
	case <-c.lifetime.Done():
	}
}

func (c *Client) pushError(ev protocol.ErrorEvent) {
	select {
	case c.errs <- ev:
	case <-c.lifetime.Done():
	}
}

// appendExchanges records the tool round-trip: the assistant turn that
// asked, then the user turn carrying results.
func appendExchanges(msgs []convert.Message, exchanges []toolExchange) []convert.Message {
	assistant := convert.Message{Role: convert.RoleAssistant}
	results := convert.Message{Role: convert.RoleUser}
	for _, ex := range exchanges {
		assistant.ToolCalls = append(assistant.ToolCalls, convert.ToolCall{
			ID:    ex.ID,
			Name:  ex.Name,
			Input: ex.Input,
		})
		results.ToolResults = append(results.ToolResults, convert.ToolResult{
			ToolUseID: ex.ID,
			Content:   ex.Result,
		})
	}
	return append(msgs, assistant, results)
}

// terminalError marks a failure that must not be retried because partial
// output already reached the application.
type terminalError struct {
	err error
}

func (e *terminalError) Error() string     { return e.err.Error() }
func (e *terminalError) Unwrap() error     { return e.err }
func (e *terminalError) IsRetryable() bool { return false }

// toErrorEvent maps any envelope error onto the taxonomy.
func toErrorEvent(err error) protocol.ErrorEvent {
	var ev protocol.ErrorEvent
	if errors.As(err, &ev) {
		return ev
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.ErrorEvent()
	}

	var coe *resilience.CircuitOpenError
	if errors.As(err, &coe) {
		return protocol.ErrorEvent{
			Kind:       protocol.ErrorKindCircuitOpen,
			Message:    coe.Error(),
			Retryable:  true,
			RetryAfter: time.Until(coe.RecoveryTime),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.ErrorEvent{Kind: protocol.ErrorKindTimeout, Message: "request timed out"}
	}
	if errors.Is(err, context.Canceled) {
		return protocol.ErrorEvent{Kind: protocol.ErrorKindStream, Message: "request cancelled"}
	}

	return protocol.ErrorEvent{Kind: protocol.ErrorKindNetwork, Message: err.Error()}
}
