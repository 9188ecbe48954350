package builtin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petal-labs/toolstream/schema"
	"github.com/petal-labs/toolstream/tool"
)

func newDispatcher(t *testing.T) *tool.Dispatcher {
	t.Helper()
	reg := tool.NewRegistry()
	if err := reg.RegisterAll(All()...); err != nil {
		t.Fatalf("RegisterAll() error = %v", err)
	}
	return tool.NewDispatcher(tool.DispatcherConfig{Registry: reg})
}

func TestAllRegistersInOrder(t *testing.T) {
	regs := All()
	want := []string{"echo", "sum_numbers", "summarise_points"}
	if len(regs) != len(want) {
		t.Fatalf("All() returned %d tools", len(regs))
	}
	for i, name := range want {
		if regs[i].Name != name {
			t.Fatalf("All()[%d] = %q, want %q", i, regs[i].Name, name)
		}
	}
	if regs[2].Handler.Kind() != tool.KindStreaming || regs[0].Handler.Kind() != tool.KindSingle {
		t.Fatal("unexpected handler kinds")
	}
}

func TestFilter(t *testing.T) {
	regs := Filter(func(name string) bool { return name != "sum_numbers" })
	if len(regs) != 2 || regs[0].Name != "echo" || regs[1].Name != "summarise_points" {
		t.Fatalf("Filter() = %+v", regs)
	}
	if len(Filter(nil)) != 3 {
		t.Fatal("Filter(nil) should keep every tool")
	}
}

func TestExamplesValidate(t *testing.T) {
	for _, reg := range All() {
		example := schema.Example(reg.InputSchema)
		if diags := schema.Validate(reg.InputSchema, example); len(diags) != 0 {
			t.Fatalf("%s example %s fails validation: %+v", reg.Name, example, diags)
		}
	}
}

func TestEcho(t *testing.T) {
	item, err := newDispatcher(t).Invoke(context.Background(), "echo", []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if item["text"] != "hello" {
		t.Fatalf("item = %v", item)
	}
}

func TestSumNumbers(t *testing.T) {
	item, err := newDispatcher(t).Invoke(context.Background(), "sum_numbers", []byte(`{"a":25.5,"b":14.5}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if item["result"] != 40.0 {
		t.Fatalf("result = %v", item["result"])
	}
	if item["calculation"] != "25.5 + 14.5 = 40" {
		t.Fatalf("calculation = %v", item["calculation"])
	}
}

func TestSumNumbersRequiresBoth(t *testing.T) {
	_, err := newDispatcher(t).Invoke(context.Background(), "sum_numbers", []byte(`{}`))
	var verr *tool.ValidationError
	if !errors.As(err, &verr) || len(verr.Violations) != 2 {
		t.Fatalf("Invoke() error = %v, want two violations", err)
	}
}

func TestSummarisePointsStreamsInOrder(t *testing.T) {
	d := newDispatcher(t)
	stream, err := d.Stream(context.Background(), "summarise_points", []byte(`{"title":"Release","bullets":["a","b","c"],"delay_ms":1}`))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	items, err := tool.Collect(context.Background(), stream)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(items) != 5 {
		t.Fatalf("got %d items, want 5: %v", len(items), items)
	}
	if items[0]["message"] != `Summarising 3 points for "Release"` {
		t.Fatalf("first item = %v", items[0])
	}
	for i, want := range []string{"a", "b", "c"} {
		if items[i+1]["point"] != want || items[i+1]["index"] != i+1 {
			t.Fatalf("items[%d] = %v", i+1, items[i+1])
		}
	}
	if items[4]["summary"] != "Release: 3 points" || items[4]["count"] != 3 {
		t.Fatalf("last item = %v", items[4])
	}
}

func TestSummarisePointsDefaultDelay(t *testing.T) {
	d := newDispatcher(t)
	start := time.Now()
	stream, err := d.Stream(context.Background(), "summarise_points", []byte(`{"title":"t","bullets":["x","y"]}`))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if _, err := tool.Collect(context.Background(), stream); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("elapsed = %s, want at least two 50ms pauses", elapsed)
	}
}

func TestSummarisePointsStopsOnCancel(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := d.Stream(ctx, "summarise_points", []byte(`{"title":"t","bullets":["x","y"],"delay_ms":5000}`))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = stream.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Next() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("producer did not honour cancellation while paused")
	}
}

func TestSummarisePointsRejectsNegativeDelay(t *testing.T) {
	_, err := newDispatcher(t).Stream(context.Background(), "summarise_points", []byte(`{"title":"t","bullets":[],"delay_ms":-1}`))
	if tool.ErrorKind(err) != tool.ErrorKindValidation {
		t.Fatalf("Stream() error = %v, want validation error", err)
	}
}
