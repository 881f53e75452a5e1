package protocol

import "time"

// EventKind discriminates StreamEvent variants.
type EventKind string

const (
	EventText          EventKind = "text"
	EventWidgetMessage EventKind = "widgetMessage"
	EventRawDelta      EventKind = "rawDelta"
	EventThinking      EventKind = "thinking"
	EventComplete      EventKind = "complete"
	EventError         EventKind = "error"
)

// StreamEvent is one item of the parsed output stream. Events are emitted in
// framing-event arrival order; Complete or Error terminates the stream.
type StreamEvent interface {
	EventKind() EventKind
}

// TextDelta carries one fragment of free-form assistant text.
type TextDelta struct {
	Text string
}

func (TextDelta) EventKind() EventKind { return EventText }

// WidgetMessageEvent carries one decoded surface mutation.
type WidgetMessageEvent struct {
	Message WidgetMessage
}

func (WidgetMessageEvent) EventKind() EventKind { return EventWidgetMessage }

// RawDelta forwards the unmodified framing delta for callers that need the
// wire shape (debug overlays, transcript capture).
type RawDelta struct {
	Raw map[string]any
}

func (RawDelta) EventKind() EventKind { return EventRawDelta }

// Thinking carries extended-thinking content. IsComplete marks the final
// event of a thinking block; its Content is then empty.
type Thinking struct {
	Content    string
	IsComplete bool
}

func (Thinking) EventKind() EventKind { return EventThinking }

// Complete signals normal end of the model reply.
type Complete struct{}

func (Complete) EventKind() EventKind { return EventComplete }

// ErrorKind classifies failures per the error taxonomy.
type ErrorKind string

const (
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindAuthentication ErrorKind = "authentication"
	ErrorKindRateLimit      ErrorKind = "rateLimit"
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindServer         ErrorKind = "server"
	ErrorKindStream         ErrorKind = "stream"
	ErrorKindCircuitOpen    ErrorKind = "circuitOpen"
)

// ErrorEvent is the single terminal error of a failed request, or a
// non-terminal stream error when the framing was malformed but recoverable.
type ErrorEvent struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	StatusCode int
	RetryAfter time.Duration
}

func (ErrorEvent) EventKind() EventKind { return EventError }

func (e ErrorEvent) Error() string { return e.Message }

// IsRetryable lets retry policies classify the event without knowing its
// concrete type.
func (e ErrorEvent) IsRetryable() bool { return e.Retryable }
