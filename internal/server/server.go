// Package server exposes the retrieval engine over HTTP. Search, RAG
// answers, and the person views are synchronous; indexing runs as
// background jobs through the manager so POST /api/index returns a job
// id to poll. Responses are JSON, errors use an {error} envelope.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/noterag/noterag/internal/config"
	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/noteerr"
	"github.com/noterag/noterag/internal/search"
	"github.com/noterag/noterag/internal/store"
	"github.com/noterag/noterag/internal/telemetry"
)

const (
	// maxBodyBytes caps POST bodies. Requests carry a question or an
	// index trigger, never note content.
	maxBodyBytes = 1 << 20

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps carries the engine components the server exposes. Config,
// Searcher, Jobs, and Vectors are required; Metrics and FTS widen the
// stats endpoint when present.
type Deps struct {
	Config   *config.Config
	Searcher *search.Searcher
	Jobs     *index.Manager
	Vectors  store.VectorStore
	FTS      store.FTSStore
	Metrics  *telemetry.Collector
}

// Server is the HTTP front end.
type Server struct {
	cfg      *config.Config
	searcher *search.Searcher
	jobs     *index.Manager
	vectors  store.VectorStore
	fts      store.FTSStore
	metrics  *telemetry.Collector

	http *http.Server
}

// New wires the routes and returns a server ready to listen on the
// configured address.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil || deps.Searcher == nil || deps.Jobs == nil || deps.Vectors == nil {
		return nil, noteerr.Errorf(noteerr.KindConfig, "server.new",
			"config, searcher, job manager, and vector store are required")
	}

	s := &Server{
		cfg:      deps.Config,
		searcher: deps.Searcher,
		jobs:     deps.Jobs,
		vectors:  deps.Vectors,
		fts:      deps.FTS,
		metrics:  deps.Metrics,
	}
	s.http = &http.Server{
		Addr:              deps.Config.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/person/{name}", s.handlePerson)
	mux.HandleFunc("GET /api/actions", s.handleActions)
	mux.HandleFunc("POST /api/index", s.handleIndexStart)
	mux.HandleFunc("GET /api/index/status", s.handleIndexStatus)
	mux.HandleFunc("POST /api/index/cancel", s.handleIndexCancel)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return withLogging(mux)
}

// ListenAndServe binds the configured address and serves until Shutdown
// or a listener error.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener. It returns nil after a clean
// Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	slog.Info("server_listening", slog.String("addr", ln.Addr().String()))
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, waiting at most shutdownTimeout
// beyond whatever deadline ctx already carries.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	slog.Info("server_stopping")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", slog.String("error", err.Error()))
	}
}

// writeError emits the {error} envelope every endpoint uses.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// httpStatus maps an error kind to a response code. Malformed input is
// the caller's fault; a transient kind means a backend we depend on is
// down.
func httpStatus(err error) int {
	switch {
	case noteerr.IsMalformedInput(err):
		return http.StatusBadRequest
	case noteerr.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a request body strictly: unknown fields are an
// error. An empty body leaves dst zeroed so endpoints with all-optional
// fields accept a bare POST.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return noteerr.Errorf(noteerr.KindMalformedInput, "server.decode",
			"invalid request body: %v", err)
	}
	return nil
}
