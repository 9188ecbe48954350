package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/petal-labs/toolstream/sse"
	"github.com/petal-labs/toolstream/tool"
)

// HeaderInvocationID carries the id assigned to an invocation.
const HeaderInvocationID = "X-Invocation-Id"

// LoadReporter reports how many invocations are currently running.
type LoadReporter interface {
	InFlight() int64
}

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Dispatcher *tool.Dispatcher
	// Load feeds the health endpoint. Nil reports zero in-flight calls.
	Load LoadReporter
	// DegradedInFlight marks health as degraded once this many invocations
	// run at once. Zero disables the check.
	DegradedInFlight  int64
	HeartbeatInterval time.Duration
	CORSOrigin        string
	MaxBody           int64
	Logger            *slog.Logger
	Now               func() time.Time
}

// Server is the toolstream HTTP API server.
type Server struct {
	dispatcher       *tool.Dispatcher
	load             LoadReporter
	degradedInFlight int64
	heartbeat        time.Duration
	corsOrigin       string
	maxBody          int64
	logger           *slog.Logger
	now              func() time.Time
	started          time.Time
}

// NewServer creates a new Server with the given configuration. The
// registry behind the dispatcher is sealed; no tools can be added once the
// server exists.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := cfg.Dispatcher
	if dispatcher == nil {
		dispatcher = tool.NewDispatcher(tool.DispatcherConfig{Logger: logger})
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat == 0 {
		heartbeat = sse.HeartbeatInterval
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	dispatcher.Registry().Seal()

	return &Server{
		dispatcher:       dispatcher,
		load:             cfg.Load,
		degradedInFlight: cfg.DegradedInFlight,
		heartbeat:        heartbeat,
		corsOrigin:       corsOrigin,
		maxBody:          maxBody,
		logger:           logger,
		now:              now,
		started:          now(),
	}
}

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the tool API onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleListTools)
	mux.HandleFunc("POST /invoke/{name}", s.handleInvoke)
	mux.HandleFunc("POST /tools/{name}", s.handleInvoke)
	mux.HandleFunc("POST /stream/{name}", s.handleStream)
	mux.HandleFunc("POST /stream/tools/{name}", s.handleStream)
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Expose-Headers", HeaderInvocationID)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string, details any) {
	writeJSON(w, status, ErrorResponse{
		ErrorKind: kind,
		Message:   message,
		Details:   details,
	})
}
