// Package api implements the impactgate HTTP API server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sprite-ai/impactgate/internal/gate"
	"github.com/sprite-ai/impactgate/internal/impact"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "impactgate_http_requests_total",
	Help: "HTTP requests served, by method and status code.",
}, []string{"method", "code"})

// Server is the impactgate HTTP API server.
type Server struct {
	addr   string
	svc    *impact.Service
	logger *slog.Logger
	hub    *hub
	mux    *http.ServeMux
	server *http.Server
}

// New creates an API server backed by svc. Gate status changes of svc are
// broadcast to websocket clients.
func New(addr string, svc *impact.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		svc:    svc,
		logger: logger,
		hub:    newHub(logger),
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	svc.OnStatusChange(s.hub.broadcastStatus)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      promhttp.InstrumentHandlerCounter(requestsTotal, s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/trigger", s.handleTrigger)
	s.mux.HandleFunc("GET /api/analyses", s.handleList)
	s.mux.HandleFunc("GET /api/analyses/{id}", s.handleGet)
	s.mux.HandleFunc("POST /api/analyses/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/analyses/{id}/override", s.handleOverride)
	s.mux.HandleFunc("POST /api/analyses/{id}/revoke", s.handleRevoke)
	s.mux.HandleFunc("POST /api/analyses/{id}/validations/{vid}", s.handleValidation)
	s.mux.HandleFunc("POST /api/analyses/{id}/risks/{rid}/mitigate", s.handleMitigate)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("impactgate API server listening", slog.String("addr", s.addr))
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.closeAll()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	}
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Error("json encode", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var invalid *gate.InvalidBlockerError
	switch {
	case errors.As(err, &invalid):
		s.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       err.Error(),
			"blocker_ids": invalid.IDs,
		})
	case errors.Is(err, impact.ErrNotFound), errors.Is(err, gate.ErrItemNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gate.ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", slog.Any("error", err))
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func readJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}
