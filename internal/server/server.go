// Package server exposes the chat turn, the checklist and session memory
// over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/vesselcheck/internal/agent"
	"github.com/apexion-ai/vesselcheck/internal/checklist"
	"github.com/apexion-ai/vesselcheck/internal/session"
)

const maxBodyBytes = 1 << 20

// TurnHandler runs one chat turn. *agent.Orchestrator implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req agent.TurnRequest) agent.Response
}

// pinger is implemented by stores that can report connection health.
type pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr          string
	Version       string
	HistoryWindow int
	// ModelTimeout is the orchestrator's bound on one model call. The
	// write timeout is derived from it.
	ModelTimeout time.Duration
	Logger       zerolog.Logger
}

// Server provides the HTTP API for vesselcheck.
type Server struct {
	turns   TurnHandler
	store   checklist.Store
	memory  *session.Memory
	addr    string
	version string
	window  int
	log     zerolog.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(turns TurnHandler, store checklist.Store, memory *session.Memory, opts Options) *Server {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = session.DefaultHistoryWindow
	}
	s := &Server{
		turns:   turns,
		store:   store,
		memory:  memory,
		addr:    opts.Addr,
		version: opts.Version,
		window:  opts.HistoryWindow,
		log:     opts.Logger,
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      writeTimeout(opts.ModelTimeout),
	}
	return s
}

const (
	minWriteTimeout = 2 * time.Minute
	writeSlack      = 30 * time.Second
)

// writeTimeout leaves room for a full model call plus the store work
// around it.
func writeTimeout(model time.Duration) time.Duration {
	return max(minWriteTimeout, model+writeSlack)
}

// Handler returns the routed API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /api/checklists", s.handleChecklists)
	mux.HandleFunc("POST /api/checklist/item", s.handleUpdateItem)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}/memory", s.handleSessionMemory)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleClearSession)
	mux.HandleFunc("DELETE /api/sessions", s.handleClearAll)

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.logRequests(mux)
}

// ListenAndServe starts the HTTP server and blocks until it stops.
// http.ErrServerClosed is reported as nil.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.addr).Msg("starting http server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(started)).
			Msg("http request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
