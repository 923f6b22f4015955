package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mariozechner/bytebox/pkg/language"
	"github.com/mariozechner/bytebox/pkg/runner"
	"github.com/mariozechner/bytebox/pkg/sandbox"
)

const maxRequestBytes = 1 << 20

// Server serves the execution backend and the workspace socket.
type Server struct {
	sandbox         sandbox.Manager
	languages       *language.Registry
	executor        runner.Executor
	defaultLanguage string
	limiter         *IPRateLimiter
	trustProxy      bool
	metrics         *Metrics
	logger          *slog.Logger

	mu  sync.Mutex
	srv *http.Server
}

type Option func(*Server)

// WithRateLimit limits POST /run per client IP. The default allows a burst
// of 10 runs refilled at one every 6 seconds.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) { s.limiter = NewIPRateLimiter(r, burst) }
}

// WithExecutor sets the executor used by workspace sockets. By default they
// run through the server's own sandbox.
func WithExecutor(e runner.Executor) Option {
	return func(s *Server) { s.executor = e }
}

// WithDefaultLanguage selects the language of new workspaces.
func WithDefaultLanguage(id string) Option {
	return func(s *Server) { s.defaultLanguage = id }
}

// WithTrustProxy makes rate limiting key on the first X-Forwarded-For hop.
// Enable it only behind a proxy that sets the header.
func WithTrustProxy(trust bool) Option {
	return func(s *Server) { s.trustProxy = trust }
}

// WithLogger sets the logger (slog.Default() by default).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a new Server.
func New(sb sandbox.Manager, languages *language.Registry, opts ...Option) *Server {
	s := &Server{
		sandbox:         sb,
		languages:       languages,
		defaultLanguage: languages.IDs()[0],
		limiter:         NewIPRateLimiter(rate.Every(6*time.Second), 10),
		metrics:         &Metrics{},
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.executor == nil {
		s.executor = NewSandboxExecutor(sb)
	}
	return s
}

// Handler returns the routed handler, wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Execution backend
	mux.Handle("POST /run/{language}", s.rateLimit(http.HandlerFunc(s.handleRun)))

	mux.HandleFunc("GET /api/languages", s.handleListLanguages)
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// WebSocket
	mux.HandleFunc("GET /api/workspace", s.handleWorkspaceWebSocket)

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info("Starting web server", "addr", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully stops a started server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.clientIP(r)
		if !s.limiter.Allow(ip) {
			s.metrics.incRateLimited()
			s.logger.Warn("Rate limit exceeded", "ip", ip)
			http.Error(w, msgTooManyRequests, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) clientIP(r *http.Request) string {
	return clientIP(r, s.trustProxy)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	s.logger.Error("API Error", "status", status, "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
