package httpclient

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const doneSentinel = "[DONE]"

// Allow single framing events well beyond typical delta sizes.
const sseBufferSize = 1024 * 1024

// SSEScanner reads server-sent `data: <json>` lines and decodes each into a
// framing event map. Empty data lines and the [DONE] sentinel are skipped;
// a malformed payload becomes an error framing event rather than a decode
// failure, so one bad line cannot kill the stream plumbing.
type SSEScanner struct {
	scanner *bufio.Scanner
	done    bool
}

// NewSSEScanner wraps r, typically a streaming response body.
func NewSSEScanner(r io.Reader) *SSEScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), sseBufferSize)
	return &SSEScanner{scanner: scanner}
}

// Next returns the next framing event. io.EOF signals a finished stream;
// any other error came from the underlying reader.
func (s *SSEScanner) Next() (map[string]any, error) {
	if s.done {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			// Blank separators, "event:" lines and comments carry nothing
			// the framing layer needs.
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if payload == doneSentinel {
			s.done = true
			return nil, io.EOF
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return map[string]any{
				"type": "error",
				"error": map[string]any{
					"type":    "parse_error",
					"message": "malformed event payload: " + err.Error(),
				},
			}, nil
		}
		return event, nil
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
