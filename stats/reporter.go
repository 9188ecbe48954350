package stats

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ReporterConfig configures a Reporter.
type ReporterConfig struct {
	Collector *Collector
	// Schedule is a cron expression or descriptor, e.g. "@every 5m".
	Schedule string
	Logger   *slog.Logger
}

// Reporter logs a Collector summary on a cron schedule.
type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	cron      *cron.Cron
	schedule  string
	now       func() time.Time
}

// NewReporter validates the schedule and prepares a stopped reporter.
func NewReporter(cfg ReporterConfig) (*Reporter, error) {
	if cfg.Collector == nil {
		return nil, errors.New("stats: reporter requires a collector")
	}
	schedule, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Reporter{
		collector: cfg.Collector,
		logger:    logger,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		schedule:  cfg.Schedule,
		now:       time.Now,
	}
	r.cron.Schedule(schedule, cron.FuncJob(r.Report))
	return r, nil
}

// Start begins running the schedule in the background and logs when the
// first report is due.
func (r *Reporter) Start() {
	r.cron.Start()
	next, err := NextRun(r.schedule, r.now())
	if err != nil {
		return
	}
	r.logger.Info("stats reporter started",
		"schedule", strings.TrimSpace(r.schedule),
		"next_report", next.Format(time.RFC3339),
	)
}

// Stop halts the schedule and waits for a running report to finish, or for
// ctx to end.
func (r *Reporter) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report logs the current totals and one line per tool.
func (r *Reporter) Report() {
	snap := r.collector.Snapshot()
	r.logger.Info("tool stats",
		"in_flight", snap.InFlight,
		"invocations", snap.Invocations,
		"failures", snap.Failures,
		"rejected", snap.Rejected,
		"items", snap.Items,
		"tools", len(snap.Tools),
	)
	for _, ts := range snap.Tools {
		r.logger.Info("tool stats",
			"tool", ts.Name,
			"invocations", ts.Invocations,
			"failures", ts.Failures,
			"rejected", ts.Rejected,
			"items", ts.Items,
			"mean_latency_ms", ts.MeanLatency.Milliseconds(),
		)
	}
}
