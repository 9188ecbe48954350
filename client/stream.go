package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/petal-labs/toolstream/sse"
	"github.com/petal-labs/toolstream/tool"
)

// ErrTruncated is returned when the connection ends before a terminal event.
var ErrTruncated = errors.New("client: stream ended without a terminal event")

// StreamError is the error event that ended a stream.
type StreamError struct {
	sse.ErrorPayload
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("client: tool %q failed (%s): %s", e.Tool, e.ErrorKind, e.ErrorPayload.Error)
}

// EventStream reads events from an open streaming response.
type EventStream struct {
	InvocationID string

	body      io.ReadCloser
	reader    *sse.Reader
	terminal  bool
	closeOnce sync.Once
	closeErr  error
}

// Next returns the next event. After the terminal event it returns io.EOF;
// if the connection drops first it returns ErrTruncated.
func (s *EventStream) Next() (sse.Event, error) {
	if s.terminal {
		return sse.Event{}, io.EOF
	}
	ev, err := s.reader.Next()
	if errors.Is(err, io.EOF) {
		return sse.Event{}, ErrTruncated
	}
	if err != nil {
		return sse.Event{}, err
	}
	if ev.Kind.Terminal() {
		s.terminal = true
	}
	return ev, nil
}

// Items reads to the end of the stream and returns the data items. A
// stream that ends in an error event returns the items so far and a
// *StreamError.
func (s *EventStream) Items() ([]tool.Item, error) {
	var items []tool.Item
	for {
		ev, err := s.Next()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		switch ev.Kind {
		case sse.EventData:
			var item tool.Item
			if err := json.Unmarshal(ev.Data, &item); err != nil {
				return items, fmt.Errorf("client: decode data event %d: %w", ev.Seq, err)
			}
			items = append(items, item)
		case sse.EventError:
			var payload sse.ErrorPayload
			if err := json.Unmarshal(ev.Data, &payload); err != nil {
				return items, fmt.Errorf("client: decode error event: %w", err)
			}
			return items, &StreamError{ErrorPayload: payload}
		}
	}
}

// Close releases the connection. Closing early cancels the invocation on
// the server.
func (s *EventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
