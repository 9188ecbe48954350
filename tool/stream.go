package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrStreamClosed is returned by Next after Close.
var ErrStreamClosed = errors.New("tool: stream is closed")

// Stream hands out normalized items one pull at a time. Next returns io.EOF
// after the last item and keeps returning it. Close releases the producer
// and may be called more than once. A Stream is not safe for concurrent use.
type Stream interface {
	Next(ctx context.Context) (Item, error)
	Close() error
}

// Collect drains s into a slice and closes it.
func Collect(ctx context.Context, s Stream) ([]Item, error) {
	defer s.Close()

	var items []Item
	for {
		item, err := s.Next(ctx)
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
}

// pullStream drives a producer through iter.Pull2. The producer runs only
// while Next is waiting on it.
type pullStream struct {
	next     func() (any, error, bool)
	stop     func()
	finished bool
	closed   bool
}

func newPullStream(seq iter.Seq2[any, error]) *pullStream {
	next, stop := iter.Pull2(seq)
	return &pullStream{next: next, stop: stop}
}

func (s *pullStream) Next(ctx context.Context) (Item, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.finished {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.end()
		return nil, err
	}

	v, err, ok := s.pull()
	if !ok {
		s.end()
		return nil, io.EOF
	}
	if err != nil {
		s.end()
		return nil, err
	}
	item, err := normalizeItem(v)
	if err != nil {
		s.end()
		return nil, err
	}
	return item, nil
}

func (s *pullStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}

func (s *pullStream) end() {
	s.finished = true
	s.stop()
}

func (s *pullStream) pull() (v any, err error, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v, err, ok = nil, panicError{value: r}, true
		}
	}()
	return s.next()
}

// normalizeItem coerces a handler result into a JSON object.
func normalizeItem(v any) (Item, error) {
	switch x := v.(type) {
	case nil:
		return nil, errors.New("handler returned no output")
	case map[string]any:
		return x, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("output is not JSON-serializable: %w", err)
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil || item == nil {
		return nil, fmt.Errorf("output must be a JSON object, got %T", v)
	}
	return item, nil
}
