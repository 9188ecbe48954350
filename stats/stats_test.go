package stats

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/toolstream/tool"
)

func TestParseScheduleValid(t *testing.T) {
	next, err := NextRun("*/5 * * * *", time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NextRun error: %v", err)
	}
	want := time.Date(2026, 2, 20, 10, 5, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next=%s, want=%s", next.Format(time.RFC3339), want.Format(time.RFC3339))
	}
}

func TestParseScheduleDescriptors(t *testing.T) {
	now := time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC)

	next, err := NextRun("@every 90s", now)
	if err != nil {
		t.Fatalf("NextRun(@every) error: %v", err)
	}
	if !next.Equal(now.Add(90 * time.Second)) {
		t.Fatalf("next=%s", next.Format(time.RFC3339))
	}

	next, err = NextRun("@hourly", now)
	if err != nil {
		t.Fatalf("NextRun(@hourly) error: %v", err)
	}
	if !next.Equal(time.Date(2026, 2, 20, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("next=%s", next.Format(time.RFC3339))
	}
}

func TestParseScheduleRejectsInvalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"CRON_TZ=America/Los_Angeles * * * * *",
		"TZ=UTC * * * * *",
		"* * *",
		"@fortnightly",
	} {
		if _, err := ParseSchedule(expr); err == nil {
			t.Fatalf("ParseSchedule(%q) expected error", expr)
		}
	}
}

func TestCollectorCountsInvocations(t *testing.T) {
	c := NewCollector()

	c.ObserveStart(tool.InvocationStart{ToolName: "echo"})
	c.ObserveStart(tool.InvocationStart{ToolName: "points"})
	if c.InFlight() != 2 {
		t.Fatalf("InFlight() = %d, want 2", c.InFlight())
	}

	c.ObserveFinish(tool.InvocationObservation{ToolName: "echo", HandlerRan: true, Success: true, Items: 1, Duration: 10 * time.Millisecond})
	c.ObserveFinish(tool.InvocationObservation{ToolName: "points", HandlerRan: true, Items: 2, Duration: 30 * time.Millisecond, ErrorKind: tool.ErrorKindHandler})
	c.ObserveFinish(tool.InvocationObservation{ToolName: "echo", ErrorKind: tool.ErrorKindValidation})

	if c.InFlight() != 0 {
		t.Fatalf("InFlight() = %d, want 0", c.InFlight())
	}

	snap := c.Snapshot()
	if snap.Invocations != 2 || snap.Failures != 1 || snap.Rejected != 1 || snap.Items != 3 {
		t.Fatalf("snapshot totals = %+v", snap)
	}
	if len(snap.Tools) != 2 || snap.Tools[0].Name != "echo" || snap.Tools[1].Name != "points" {
		t.Fatalf("snapshot tools = %+v", snap.Tools)
	}
	echo := snap.Tools[0]
	if echo.Invocations != 1 || echo.Rejected != 1 || echo.MeanLatency != 10*time.Millisecond {
		t.Fatalf("echo stats = %+v", echo)
	}
	if echo.ErrorKinds[tool.ErrorKindValidation] != 1 {
		t.Fatalf("echo error kinds = %v", echo.ErrorKinds)
	}
	if snap.Tools[1].ErrorKinds[tool.ErrorKindHandler] != 1 {
		t.Fatalf("points error kinds = %v", snap.Tools[1].ErrorKinds)
	}
}

func TestCollectorAsDispatcherObserver(t *testing.T) {
	c := NewCollector()
	reg := tool.NewRegistry()
	noop := tool.NewSingle("noop", "", func(context.Context, struct{}) (any, error) {
		if c.InFlight() != 1 {
			t.Errorf("InFlight() inside handler = %d, want 1", c.InFlight())
		}
		return map[string]any{"ok": true}, nil
	})
	if err := reg.Register(noop); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	d := tool.NewDispatcher(tool.DispatcherConfig{Registry: reg, Observer: c})

	if _, err := d.Invoke(context.Background(), "noop", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if _, err := d.Invoke(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected unknown tool error")
	}

	snap := c.Snapshot()
	if snap.InFlight != 0 || snap.Invocations != 1 || snap.Rejected != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestReporterLogsSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := NewCollector()
	c.ObserveStart(tool.InvocationStart{ToolName: "echo"})
	c.ObserveFinish(tool.InvocationObservation{ToolName: "echo", HandlerRan: true, Success: true, Items: 1})

	r, err := NewReporter(ReporterConfig{Collector: c, Schedule: "@every 1h", Logger: logger})
	if err != nil {
		t.Fatalf("NewReporter() error = %v", err)
	}
	r.Report()

	out := buf.String()
	if !strings.Contains(out, "invocations=1") || !strings.Contains(out, "tool=echo") {
		t.Fatalf("report output = %s", out)
	}
}

func TestReporterStartStop(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r, err := NewReporter(ReporterConfig{Collector: NewCollector(), Schedule: "@hourly", Logger: logger})
	if err != nil {
		t.Fatalf("NewReporter() error = %v", err)
	}
	r.now = func() time.Time { return time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC) }
	r.Start()

	if out := buf.String(); !strings.Contains(out, "next_report=2026-02-20T11:00:00Z") {
		t.Fatalf("start log = %s", out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestNewReporterValidates(t *testing.T) {
	if _, err := NewReporter(ReporterConfig{Schedule: "@hourly"}); err == nil {
		t.Fatal("expected error without collector")
	}
	if _, err := NewReporter(ReporterConfig{Collector: NewCollector(), Schedule: "bogus"}); err == nil {
		t.Fatal("expected error for bad schedule")
	}
}
