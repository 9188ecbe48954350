package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscoverFromPrefersExplicitThenEnv(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.yaml")
	env := filepath.Join(dir, "env.yaml")
	writeFile(t, explicit, "")
	writeFile(t, env, "")

	got, found, err := DiscoverFrom(explicit, env, dir, dir)
	if err != nil || !found || got != explicit {
		t.Fatalf("DiscoverFrom(explicit) = %q, %v, %v", got, found, err)
	}

	got, found, err = DiscoverFrom("", env, dir, dir)
	if err != nil || !found || got != env {
		t.Fatalf("DiscoverFrom(env) = %q, %v, %v", got, found, err)
	}
}

func TestDiscoverFromMissingExplicitIsError(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := DiscoverFrom(filepath.Join(dir, "nope.yaml"), "", dir, dir); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
	if _, _, err := DiscoverFrom("", filepath.Join(dir, "nope.yaml"), dir, dir); err == nil {
		t.Fatal("expected error for missing env config")
	}
}

func TestDiscoverFromProjectThenHome(t *testing.T) {
	cwd := t.TempDir()
	home := t.TempDir()

	_, found, err := DiscoverFrom("", "", cwd, home)
	if err != nil || found {
		t.Fatalf("DiscoverFrom(no files) found=%v err=%v", found, err)
	}

	homeFile := filepath.Join(home, homeConfigDir, homeConfigName)
	writeFile(t, homeFile, "")
	got, found, err := DiscoverFrom("", "", cwd, home)
	if err != nil || !found || got != homeFile {
		t.Fatalf("DiscoverFrom(home) = %q, %v, %v", got, found, err)
	}

	projectFile := filepath.Join(cwd, projectConfigName)
	writeFile(t, projectFile, "")
	got, found, err = DiscoverFrom("", "", cwd, home)
	if err != nil || !found || got != projectFile {
		t.Fatalf("DiscoverFrom(project) = %q, %v, %v", got, found, err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolstream.yaml")
	writeFile(t, path, `
server:
  port: 9090
  heartbeat: 5s
tools:
  disabled: ["sum_*"]
health:
  degraded_inflight: 8
stats:
  report_schedule: "@every 5m"
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Heartbeat != 5*time.Second {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.MaxBody != 1<<20 {
		t.Fatalf("defaults lost: %+v", cfg.Server)
	}
	if cfg.Health.DegradedInFlight != 8 || cfg.Stats.ReportSchedule != "@every 5m" {
		t.Fatalf("health/stats = %+v %+v", cfg.Health, cfg.Stats)
	}
	if cfg.Telemetry.ServiceName != "toolstream" || cfg.Telemetry.SampleRatio != 1 {
		t.Fatalf("telemetry defaults lost: %+v", cfg.Telemetry)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Fatalf("Addr() = %q", cfg.Server.Addr())
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	writeFile(t, path, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != Default().Server.Port {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, path, "server:\n  prot: 1\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Server.MaxBody = 0
	cfg.Server.Heartbeat = -time.Second
	cfg.Health.DegradedInFlight = -1
	cfg.Stats.ReportSchedule = "whenever"
	cfg.Telemetry.SampleRatio = 2
	cfg.Telemetry.MetricInterval = -time.Second
	cfg.Log.Level = "loud"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"server.port",
		"server.max_body",
		"server.heartbeat",
		"health.degraded_inflight",
		"stats.report_schedule",
		"telemetry.sample_ratio",
		"telemetry.metric_interval",
		"log.level",
		"log.format",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestToolsAllows(t *testing.T) {
	tests := []struct {
		name  string
		tools ToolsConfig
		tool  string
		want  bool
	}{
		{"no patterns", ToolsConfig{}, "echo", true},
		{"enabled match", ToolsConfig{Enabled: []string{"e*"}}, "echo", true},
		{"enabled miss", ToolsConfig{Enabled: []string{"e*"}}, "sum_numbers", false},
		{"disabled wins", ToolsConfig{Enabled: []string{"*"}, Disabled: []string{"sum_?umbers"}}, "sum_numbers", false},
		{"disabled other", ToolsConfig{Disabled: []string{"sum_*"}}, "echo", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tools.Allows(tt.tool); got != tt.want {
				t.Fatalf("Allows(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	if got := (LogConfig{Level: "warn"}).SlogLevel().String(); got != "WARN" {
		t.Fatalf("SlogLevel(warn) = %s", got)
	}
	if got := (LogConfig{Level: "bogus"}).SlogLevel().String(); got != "INFO" {
		t.Fatalf("SlogLevel(bogus) = %s", got)
	}
}
