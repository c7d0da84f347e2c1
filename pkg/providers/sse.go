package providers

import (
	"bufio"
	"io"
	"strings"
)

// maxSSELine bounds a single SSE line. Upstreams occasionally send large
// tool call arguments in one event.
const maxSSELine = 1 << 20

// SSEEvent is one Server-Sent Event.
type SSEEvent struct {
	// Event is the value of the "event:" field, empty for unnamed events
	Event string

	// Data is the concatenation of the "data:" lines, joined by newlines
	Data string
}

// SSEReader reads Server-Sent Events from an upstream response body.
type SSEReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// NewSSEReader wraps body. The reader owns body and closes it on Close.
func NewSSEReader(body io.ReadCloser) *SSEReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	return &SSEReader{body: body, scanner: scanner}
}

// Next returns the next event. It returns io.EOF when the body ends
// without a pending event. Comment lines and the id/retry fields are
// ignored.
func (r *SSEReader) Next() (SSEEvent, error) {
	if r.closed {
		return SSEEvent{}, io.EOF
	}

	var (
		ev      SSEEvent
		data    []string
		pending bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if pending {
				break
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Event = value
			pending = true
		case "data":
			data = append(data, value)
			pending = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return SSEEvent{}, err
	}
	if !pending {
		return SSEEvent{}, io.EOF
	}

	ev.Data = strings.Join(data, "\n")
	return ev, nil
}

// Close closes the underlying body.
func (r *SSEReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.body.Close()
}
