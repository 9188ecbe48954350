// Package sse frames tool output streams as Server-Sent Events and reads
// them back.
//
// Wire format, one block per event:
//
//	id: {seq}
//	event: {kind}
//	data: {json}
//
// A stream is always start, zero or more data events, then exactly one of
// end or error. Comment lines (": ping") may appear between events.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/petal-labs/toolstream/tool"
)

// EventKind names an event in a framed stream.
type EventKind string

const (
	EventStart EventKind = "start"
	EventData  EventKind = "data"
	EventEnd   EventKind = "end"
	EventError EventKind = "error"
)

// Terminal reports whether no event can follow k.
func (k EventKind) Terminal() bool {
	return k == EventEnd || k == EventError
}

// Event is one framed message. Seq starts at 1 within a stream.
type Event struct {
	Seq  uint64
	Kind EventKind
	Data json.RawMessage
}

// StartPayload is the data of a start event.
type StartPayload struct {
	Tool         string `json:"tool"`
	InvocationID string `json:"invocation_id,omitempty"`
}

// EndPayload is the data of an end event.
type EndPayload struct {
	Tool  string `json:"tool"`
	Items int    `json:"items"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Tool      string `json:"tool"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
}

// Sink receives framed events in order.
type Sink interface {
	Send(ev Event) error
}

// Frame drains stream into sink as start, data..., end. If the stream fails
// an error event is sent and the failure is returned. An item is delivered
// to the sink before the next one is pulled. On cancellation or a sink
// failure nothing more is sent. The stream is closed in every case.
func Frame(ctx context.Context, toolName string, stream tool.Stream, sink Sink) error {
	defer stream.Close()

	f := framer{sink: sink}
	start := StartPayload{Tool: toolName, InvocationID: tool.InvocationID(ctx)}
	if err := f.send(EventStart, start); err != nil {
		return err
	}

	items := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return f.send(EventEnd, EndPayload{Tool: toolName, Items: items})
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return f.fail(toolName, err)
		}

		data, err := json.Marshal(item)
		if err != nil {
			return f.fail(toolName, &tool.HandlerError{
				Tool:    toolName,
				Message: fmt.Sprintf("output is not JSON-serializable: %v", err),
				Cause:   err,
			})
		}
		if err := f.emit(EventData, data); err != nil {
			return err
		}
		items++
	}
}

type framer struct {
	sink Sink
	seq  uint64
}

func (f *framer) send(kind EventKind, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse: encode %s event: %w", kind, err)
	}
	return f.emit(kind, data)
}

func (f *framer) emit(kind EventKind, data []byte) error {
	f.seq++
	return f.sink.Send(Event{Seq: f.seq, Kind: kind, Data: data})
}

// fail sends the error event and returns cause, or the sink failure if the
// event could not be delivered.
func (f *framer) fail(toolName string, cause error) error {
	payload := ErrorPayload{
		Tool:      toolName,
		Error:     errorMessage(cause),
		ErrorKind: tool.ErrorKind(cause),
	}
	if err := f.send(EventError, payload); err != nil {
		return err
	}
	return cause
}

func errorMessage(err error) string {
	var herr *tool.HandlerError
	if errors.As(err, &herr) {
		return herr.Message
	}
	return err.Error()
}
