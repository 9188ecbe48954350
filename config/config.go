// Package config loads the toolstream YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/match"
	"gopkg.in/yaml.v3"

	"github.com/petal-labs/toolstream/stats"
)

const (
	projectConfigName = "toolstream.yaml"
	homeConfigName    = "config.yaml"
	homeConfigDir     = ".toolstream"

	// EnvConfigPath names a config file when no explicit path is given.
	EnvConfigPath = "TOOLSTREAM_CONFIG"
)

// File is the full configuration file shape.
type File struct {
	Server    ServerConfig    `yaml:"server"`
	Tools     ToolsConfig     `yaml:"tools"`
	Health    HealthConfig    `yaml:"health"`
	Stats     StatsConfig     `yaml:"stats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds listener and HTTP settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	CORSOrigin      string        `yaml:"cors_origin"`
	MaxBody         int64         `yaml:"max_body"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
}

// ToolsConfig selects which built-in tools are served. Patterns use * and ?
// wildcards.
type ToolsConfig struct {
	Enabled  []string `yaml:"enabled"`
	Disabled []string `yaml:"disabled"`
}

// HealthConfig tunes the health endpoint.
type HealthConfig struct {
	DegradedInFlight int64 `yaml:"degraded_inflight"`
}

// StatsConfig schedules the periodic stats log. Empty disables it.
type StatsConfig struct {
	ReportSchedule string `yaml:"report_schedule"`
}

// TelemetryConfig configures OpenTelemetry export. Empty endpoint keeps
// telemetry in-process only.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"service_name"`
	SampleRatio  float64 `yaml:"sample_ratio"`
	// MetricInterval is how often metrics are pushed to the collector.
	// Zero uses the exporter default of one minute.
	MetricInterval time.Duration `yaml:"metric_interval"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is found.
func Default() File {
	return File{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			CORSOrigin:      "*",
			MaxBody:         1 << 20,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Heartbeat:       15 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "toolstream",
			SampleRatio: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Allows reports whether the tool name passes the enabled and disabled
// patterns. An empty enabled list allows everything not disabled.
func (t ToolsConfig) Allows(name string) bool {
	if len(t.Enabled) > 0 && !matchAny(t.Enabled, name) {
		return false
	}
	return !matchAny(t.Disabled, name)
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if match.Match(name, strings.TrimSpace(pattern)) {
			return true
		}
	}
	return false
}

// SlogLevel parses Level; unknown values fall back to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate reports every invalid setting at once.
func (f File) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if f.Server.Port < 1 || f.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", f.Server.Port)
	}
	if f.Server.MaxBody <= 0 {
		add("server.max_body must be positive, got %d", f.Server.MaxBody)
	}
	for name, d := range map[string]time.Duration{
		"server.read_timeout":     f.Server.ReadTimeout,
		"server.write_timeout":    f.Server.WriteTimeout,
		"server.shutdown_timeout": f.Server.ShutdownTimeout,
		"server.heartbeat":        f.Server.Heartbeat,
	} {
		if d < 0 {
			add("%s must not be negative, got %s", name, d)
		}
	}
	for _, pattern := range append(append([]string{}, f.Tools.Enabled...), f.Tools.Disabled...) {
		if strings.TrimSpace(pattern) == "" {
			add("tools patterns must not be empty")
			break
		}
	}
	if f.Health.DegradedInFlight < 0 {
		add("health.degraded_inflight must not be negative, got %d", f.Health.DegradedInFlight)
	}
	if s := strings.TrimSpace(f.Stats.ReportSchedule); s != "" {
		if _, err := stats.ParseSchedule(s); err != nil {
			add("stats.report_schedule: %v", err)
		}
	}
	if f.Telemetry.SampleRatio < 0 || f.Telemetry.SampleRatio > 1 {
		add("telemetry.sample_ratio must be within [0, 1], got %v", f.Telemetry.SampleRatio)
	}
	if f.Telemetry.MetricInterval < 0 {
		add("telemetry.metric_interval must not be negative, got %s", f.Telemetry.MetricInterval)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(f.Log.Level))); err != nil {
		add("log.level %q is not a valid level", f.Log.Level)
	}
	switch strings.ToLower(strings.TrimSpace(f.Log.Format)) {
	case "text", "json":
	default:
		add("log.format must be text or json, got %q", f.Log.Format)
	}

	return errors.Join(errs...)
}

// Discover resolves the config location with first-match semantics.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, os.Getenv(EnvConfigPath), cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover. An explicit path (flag
// first, then environment) must exist; otherwise the project file and then
// the home file are tried, and finding neither is not an error.
func DiscoverFrom(explicitPath, envPath, cwd, homeDir string) (string, bool, error) {
	explicit := strings.TrimSpace(explicitPath)
	if explicit == "" {
		explicit = strings.TrimSpace(envPath)
	}

	candidates := make([]string, 0, 2)
	if explicit != "" {
		candidates = append(candidates, filepath.Clean(explicit))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && explicit != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (File, error) {
	cfg := Default()

	// #nosec G304 -- path resolved from explicit local config discovery.
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	defer fh.Close()

	dec := yaml.NewDecoder(fh)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return cfg, nil
}

// Resolve discovers and loads the config. It returns the path used, or ""
// when defaults apply.
func Resolve(explicitPath string) (File, string, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return File{}, "", err
	}
	if !found {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return File{}, "", err
	}
	return cfg, path, nil
}
