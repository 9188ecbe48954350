package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/toolstream/builtin"
	"github.com/petal-labs/toolstream/config"
	tsotel "github.com/petal-labs/toolstream/otel"
	"github.com/petal-labs/toolstream/server"
	"github.com/petal-labs/toolstream/stats"
	"github.com/petal-labs/toolstream/tool"
)

// NewServeCmd creates the "serve" subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool server",
		RunE:  runServe,
	}

	cmd.Flags().String("config", "", "Path to toolstream.yaml (default: ./toolstream.yaml, then ~/.toolstream/config.yaml)")
	cmd.Flags().IntP("port", "p", 0, "Listen port (overrides config)")
	cmd.Flags().String("host", "", "Listen host (overrides config)")
	cmd.Flags().String("cors-origin", "", "Allowed CORS origin (overrides config)")
	cmd.Flags().Int64("max-body", 0, "Max request body size in bytes (overrides config)")
	cmd.Flags().Duration("read-timeout", 0, "HTTP read timeout (overrides config)")
	cmd.Flags().Duration("write-timeout", 0, "HTTP write timeout, 0 disables (overrides config)")
	cmd.Flags().Duration("heartbeat", 0, "SSE heartbeat interval (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	explicitConfigPath, _ := cmd.Flags().GetString("config")
	cfg, configPath, err := config.Resolve(explicitConfigPath)
	if err != nil {
		return exitError(exitUsage, "%v", err)
	}
	applyServeFlags(cmd, &cfg.Server)
	if err := cfg.Validate(); err != nil {
		return exitError(exitUsage, "invalid configuration:\n%v", err)
	}

	logger := newLogger(cmd, cmd.ErrOrStderr(), cfg.Log)
	if configPath != "" {
		logger.Info("loaded config", "path", configPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := newServeStack(ctx, cfg, logger)
	if err != nil {
		return exitError(exitRuntime, "%v", err)
	}
	defer stack.close(context.Background())

	httpServer := newHTTPServer(cfg.Server, stack.handler)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("toolstream listening",
			"addr", httpServer.Addr,
			"tools", stack.registry.Len(),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return exitError(exitRuntime, "shutdown error: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(exitRuntime, "server error: %v", err)
		}
		return nil
	}
}

// newHTTPServer builds the listener for handler. Every request context
// derives from a base context that Shutdown cancels, so open streams end
// through their cancellation path instead of holding shutdown until the
// timeout.
func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

// applyServeFlags copies explicitly set flags over the file values.
func applyServeFlags(cmd *cobra.Command, s *config.ServerConfig) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		s.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		s.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("cors-origin") {
		s.CORSOrigin, _ = flags.GetString("cors-origin")
	}
	if flags.Changed("max-body") {
		s.MaxBody, _ = flags.GetInt64("max-body")
	}
	if flags.Changed("read-timeout") {
		s.ReadTimeout, _ = flags.GetDuration("read-timeout")
	}
	if flags.Changed("write-timeout") {
		s.WriteTimeout, _ = flags.GetDuration("write-timeout")
	}
	if flags.Changed("heartbeat") {
		s.Heartbeat, _ = flags.GetDuration("heartbeat")
	}
}

// serveStack is everything serve runs behind the HTTP listener.
type serveStack struct {
	handler   http.Handler
	registry  *tool.Registry
	collector *stats.Collector
	reporter  *stats.Reporter
	providers *tsotel.Providers
	logger    *slog.Logger
}

func newServeStack(ctx context.Context, cfg config.File, logger *slog.Logger) (*serveStack, error) {
	providers, err := tsotel.Setup(ctx, tsotel.SetupConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	toolObserver, err := providers.ToolObserver()
	if err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("initializing tool observability: %w", err)
	}

	registry := tool.NewRegistry()
	if err := registry.RegisterAll(builtin.Filter(cfg.Tools.Allows)...); err != nil {
		_ = providers.Shutdown(ctx)
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	if registry.Len() == 0 {
		logger.Warn("no tools enabled", "enabled", cfg.Tools.Enabled, "disabled", cfg.Tools.Disabled)
	}

	collector := stats.NewCollector()
	dispatcher := tool.NewDispatcher(tool.DispatcherConfig{
		Registry: registry,
		Observer: tool.NewMultiObserver(collector, toolObserver),
		Logger:   logger,
	})

	srv := server.NewServer(server.ServerConfig{
		Dispatcher:        dispatcher,
		Load:              collector,
		DegradedInFlight:  cfg.Health.DegradedInFlight,
		HeartbeatInterval: cfg.Server.Heartbeat,
		CORSOrigin:        cfg.Server.CORSOrigin,
		MaxBody:           cfg.Server.MaxBody,
		Logger:            logger,
	})

	stack := &serveStack{
		handler:   srv.Handler(),
		registry:  registry,
		collector: collector,
		providers: providers,
		logger:    logger,
	}

	if schedule := strings.TrimSpace(cfg.Stats.ReportSchedule); schedule != "" {
		reporter, err := stats.NewReporter(stats.ReporterConfig{
			Collector: collector,
			Schedule:  schedule,
			Logger:    logger,
		})
		if err != nil {
			_ = providers.Shutdown(ctx)
			return nil, fmt.Errorf("creating stats reporter: %w", err)
		}
		reporter.Start()
		stack.reporter = reporter
	}
	return stack, nil
}

// close stops the reporter, logs final totals and flushes telemetry.
func (s *serveStack) close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.reporter != nil {
		if err := s.reporter.Stop(ctx); err != nil {
			s.logger.Warn("stopping stats reporter", "error", err)
		}
		s.reporter.Report()
	}
	if err := s.providers.Shutdown(ctx); err != nil {
		s.logger.Warn("flushing telemetry", "error", err)
	}
}
