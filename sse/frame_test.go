package sse_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"testing"
	"time"

	"github.com/petal-labs/toolstream/sse"
	"github.com/petal-labs/toolstream/tool"
)

// sliceStream serves fixed items, then err (or io.EOF).
type sliceStream struct {
	items  []tool.Item
	err    error
	pulls  int
	closed bool
}

func (s *sliceStream) Next(context.Context) (tool.Item, error) {
	s.pulls++
	if len(s.items) > 0 {
		item := s.items[0]
		s.items = s.items[1:]
		return item, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

type recordingSink struct {
	events []sse.Event
	onSend func(ev sse.Event) error
}

func (r *recordingSink) Send(ev sse.Event) error {
	if r.onSend != nil {
		if err := r.onSend(ev); err != nil {
			return err
		}
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) kinds() []sse.EventKind {
	out := make([]sse.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func assertKinds(t *testing.T, got []sse.EventKind, want ...sse.EventKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", got, want)
		}
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func newDispatcher(t *testing.T, regs ...tool.Registration) *tool.Dispatcher {
	t.Helper()
	reg := tool.NewRegistry()
	if err := reg.RegisterAll(regs...); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	return tool.NewDispatcher(tool.DispatcherConfig{Registry: reg})
}

type textInput struct {
	Text string `json:"text"`
}

func TestFrameSingleResultTool(t *testing.T) {
	echo := tool.NewSingle("echo", "", func(_ context.Context, in textInput) (any, error) {
		return map[string]any{"text": in.Text}, nil
	})
	d := newDispatcher(t, echo)
	ctx := tool.WithInvocationID(context.Background(), "inv-1")

	stream, err := d.Stream(ctx, "echo", []byte(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	sink := &recordingSink{}
	if err := sse.Frame(ctx, "echo", stream, sink); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}

	assertKinds(t, sink.kinds(), sse.EventStart, sse.EventData, sse.EventEnd)
	start := decode[sse.StartPayload](t, sink.events[0].Data)
	if start.Tool != "echo" || start.InvocationID != "inv-1" {
		t.Fatalf("start = %+v", start)
	}
	if string(sink.events[1].Data) != `{"text":"hi"}` {
		t.Fatalf("data = %s", sink.events[1].Data)
	}
	end := decode[sse.EndPayload](t, sink.events[2].Data)
	if end.Tool != "echo" || end.Items != 1 {
		t.Fatalf("end = %+v", end)
	}
	for i, ev := range sink.events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}

func TestFrameProducerKeepsOrderAcrossDelays(t *testing.T) {
	letters := tool.NewStreaming("letters", "", func(ctx context.Context, _ struct{}) iter.Seq2[any, error] {
		return func(yield func(any, error) bool) {
			for _, s := range []string{"a", "b", "c"} {
				select {
				case <-ctx.Done():
					yield(nil, ctx.Err())
					return
				case <-time.After(5 * time.Millisecond):
				}
				if !yield(map[string]any{"v": s}, nil) {
					return
				}
			}
		}
	})
	d := newDispatcher(t, letters)

	stream, err := d.Stream(context.Background(), "letters", nil)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	sink := &recordingSink{}
	if err := sse.Frame(context.Background(), "letters", stream, sink); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}

	assertKinds(t, sink.kinds(), sse.EventStart, sse.EventData, sse.EventData, sse.EventData, sse.EventEnd)
	for i, want := range []string{"a", "b", "c"} {
		got := decode[map[string]string](t, sink.events[i+1].Data)["v"]
		if got != want {
			t.Fatalf("data[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestFrameMidStreamFailure(t *testing.T) {
	stream := &sliceStream{
		items: []tool.Item{{"v": "a"}, {"v": "b"}},
		err:   &tool.HandlerError{Tool: "flaky", Message: "disk on fire"},
	}
	sink := &recordingSink{}

	err := sse.Frame(context.Background(), "flaky", stream, sink)

	var herr *tool.HandlerError
	if !errors.As(err, &herr) {
		t.Fatalf("Frame() error = %v, want HandlerError", err)
	}
	assertKinds(t, sink.kinds(), sse.EventStart, sse.EventData, sse.EventData, sse.EventError)
	payload := decode[sse.ErrorPayload](t, sink.events[3].Data)
	if payload.Tool != "flaky" || payload.Error != "disk on fire" || payload.ErrorKind != tool.ErrorKindHandler {
		t.Fatalf("error payload = %+v", payload)
	}
	if !stream.closed {
		t.Fatal("stream not closed")
	}
}

func TestFramePullsOneItemPerDelivery(t *testing.T) {
	stream := &sliceStream{items: []tool.Item{{"i": 1}, {"i": 2}, {"i": 3}}}
	sink := &recordingSink{}
	dataSeen := 0
	sink.onSend = func(ev sse.Event) error {
		if ev.Kind != sse.EventData {
			return nil
		}
		dataSeen++
		if stream.pulls != dataSeen {
			t.Errorf("data event %d sent after %d pulls", dataSeen, stream.pulls)
		}
		return nil
	}

	if err := sse.Frame(context.Background(), "count", stream, sink); err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if dataSeen != 3 {
		t.Fatalf("data events = %d, want 3", dataSeen)
	}
}

func TestFrameStopsWhenSinkFails(t *testing.T) {
	stream := &sliceStream{items: []tool.Item{{"i": 1}, {"i": 2}, {"i": 3}}}
	broken := errors.New("connection reset")
	sink := &recordingSink{}
	sink.onSend = func(ev sse.Event) error {
		if ev.Seq == 3 {
			return broken
		}
		return nil
	}

	err := sse.Frame(context.Background(), "count", stream, sink)
	if !errors.Is(err, broken) {
		t.Fatalf("Frame() error = %v, want %v", err, broken)
	}
	assertKinds(t, sink.kinds(), sse.EventStart, sse.EventData)
	if stream.pulls != 2 || !stream.closed {
		t.Fatalf("pulls = %d closed = %v, want 2 pulls and closed", stream.pulls, stream.closed)
	}
}

func TestFrameStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := &sliceStream{items: []tool.Item{{"i": 1}, {"i": 2}}}
	sink := &recordingSink{}
	sink.onSend = func(ev sse.Event) error {
		if ev.Kind == sse.EventData {
			cancel()
		}
		return nil
	}

	err := sse.Frame(ctx, "count", stream, sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Frame() error = %v, want context.Canceled", err)
	}
	assertKinds(t, sink.kinds(), sse.EventStart, sse.EventData)
	if !stream.closed {
		t.Fatal("stream not closed")
	}
}

func TestFrameUnserializableItem(t *testing.T) {
	stream := &sliceStream{items: []tool.Item{{"ch": make(chan int)}}}
	sink := &recordingSink{}

	err := sse.Frame(context.Background(), "weird", stream, sink)
	if tool.ErrorKind(err) != tool.ErrorKindHandler {
		t.Fatalf("Frame() error = %v, want handler error", err)
	}
	assertKinds(t, sink.kinds(), sse.EventStart, sse.EventError)
}
