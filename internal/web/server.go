// Package web exposes the Finsight runtime over HTTP: a chat endpoint that
// streams run events via SSE or WebSocket, run lifecycle controls, and
// conversation browsing.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/finsightai/finsight/internal/conversations"
	"github.com/finsightai/finsight/internal/observability"
	"github.com/finsightai/finsight/internal/runs"
)

// Config holds the server's collaborators.
type Config struct {
	Supervisor *runs.Supervisor
	// Direct serves the synchronous ask endpoint; nil disables it.
	Direct  *runs.Direct
	Store   conversations.Store
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP API handler.
type Server struct {
	config   Config
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// NewServer creates the API handler.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /api/chat/stream", s.handleStream)
	s.mux.HandleFunc("GET /api/chat/ws", s.handleWebSocket)
	s.mux.HandleFunc("POST /api/chat/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /api/chat/active", s.handleActive)
	s.mux.HandleFunc("GET /api/conversations", s.handleConversations)
	s.mux.HandleFunc("GET /api/conversations/{id}/messages", s.handleMessages)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// ServeHTTP implements http.Handler with request logging applied.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

	s.mux.ServeHTTP(wrapped, r)

	s.config.Logger.Debug("http request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", wrapped.status,
		"duration", time.Since(start),
		"remote_addr", r.RemoteAddr,
	)
	if m := s.config.Metrics; m != nil {
		m.HTTPRequestDuration.WithLabelValues(
			r.Method, r.URL.Path, http.StatusText(wrapped.status),
		).Observe(time.Since(start).Seconds())
	}
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush passes through so SSE handlers keep working behind the wrapper.
func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// websocket upgrade needs for hijacking.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// userID extracts the caller identity. Authentication proper is handled
// upstream; the API trusts the X-User-ID header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
