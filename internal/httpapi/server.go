// Package httpapi is the thin illustrative HTTP/WS adapter described in
// spec.md §6: a stdlib net/http.ServeMux exposing status, sessions (with
// their sub-resources), workspaces and jobs as REST resources plus the
// /v1/connect client endpoint; memories and clients have no routes. Grounded
// on the teacher's
// internal/gateway/http_server.go (ServeMux + promhttp.Handler +
// handleHealthz + graceful net.Listen/Shutdown) and
// internal/gateway/ws_control_plane.go (the /v1/connect upgrade).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/monad-ai/monad-core/internal/chat"
	"github.com/monad-ai/monad-core/internal/clientconn"
	"github.com/monad-ai/monad-core/internal/jobs"
	"github.com/monad-ai/monad-core/internal/session"
	"github.com/monad-ai/monad-core/internal/store"
	"github.com/monad-ai/monad-core/internal/workspace"
	"github.com/monad-ai/monad-core/pkg/coreerrors"
)

// clientIdentityHeader names the header a connecting client supplies to
// identify itself on the /v1/connect upgrade.
const clientIdentityHeader = "X-Monad-Client-Id"

// Server hosts the REST + WebSocket surface over the Session Manager, Chat
// Engine, Job Runner and Client Connection Manager.
type Server struct {
	host       string
	httpPort   int
	metricsPort int

	store      *store.Store
	sessions   *session.Manager
	workspaces *workspace.Registry
	engine     *chat.Engine
	jobRunner  *jobs.Runner
	conns      *clientconn.Manager
	log        *slog.Logger

	upgrader websocket.Upgrader

	httpServer    *http.Server
	metricsServer *http.Server
}

// Config supplies every collaborator Server's handlers route into.
type Config struct {
	Host        string
	HTTPPort    int
	MetricsPort int

	Store      *store.Store
	Sessions   *session.Manager
	Workspaces *workspace.Registry
	Engine     *chat.Engine
	JobRunner  *jobs.Runner
	Conns      *clientconn.Manager
	Logger     *slog.Logger
}

// New constructs a Server from its collaborators without starting any
// listener.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		host:        cfg.Host,
		httpPort:    cfg.HTTPPort,
		metricsPort: cfg.MetricsPort,
		store:       cfg.Store,
		sessions:    cfg.Sessions,
		workspaces:  cfg.Workspaces,
		engine:      cfg.Engine,
		jobRunner:   cfg.JobRunner,
		conns:       cfg.Conns,
		log:         log,
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/v1/sessions", s.handleSessions)
	mux.HandleFunc("/v1/sessions/", s.handleSessionSubresource)
	mux.HandleFunc("/v1/workspaces", s.handleWorkspaces)
	mux.HandleFunc("/v1/jobs", s.handleJobs)
	mux.HandleFunc("/v1/jobs/", s.handleJob)
	mux.HandleFunc("/v1/connect", s.handleConnect)
	return mux
}

// Start launches the REST/WS listener and, if MetricsPort is nonzero, a
// second listener serving only /metrics — mirroring the teacher's split
// between its main mux and a dedicated metrics port when configured.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.httpPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()
	s.log.Info("httpapi server listening", "addr", addr)

	if s.metricsPort != 0 {
		metricsAddr := fmt.Sprintf("%s:%d", s.host, s.metricsPort)
		metricsListener, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{Addr: metricsAddr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := s.metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("metrics server error", "error", err)
			}
		}()
		s.log.Info("httpapi metrics listening", "addr", metricsAddr)
	}
	return nil
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("http server shutdown error", "error", err)
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.log.Warn("metrics server shutdown error", "error", err)
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.Health(r.Context())
	payload := map[string]any{"status": string(status)}
	code := http.StatusOK
	if err != nil {
		payload["error"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("httpapi response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, coreerrors.ErrAccessDenied):
		code = http.StatusForbidden
	case errors.Is(err, coreerrors.ErrInvalidConfiguration):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
