// Package api exposes the operational HTTP interface: health and metrics
// probes, post submission, and a manual sweep trigger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/topoom/casefeed/internal/clock"
	"github.com/topoom/casefeed/internal/metrics"
	"github.com/topoom/casefeed/internal/pipeline"
	"github.com/topoom/casefeed/internal/sweeper"
)

// Server wires HTTP handlers to the pipeline entry queue and sweeper.
type Server struct {
	router   chi.Router
	producer *pipeline.Producer
	sweeper  *sweeper.Sweeper
	clock    clock.Clock
	log      *zap.Logger
}

// NewServer constructs a Server with middleware and routes. sweep may be
// nil, in which case the manual sweep endpoint reports unavailable.
func NewServer(producer *pipeline.Producer, sweep *sweeper.Sweeper, clk clock.Clock, log *zap.Logger) *Server {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		producer: producer,
		sweeper:  sweep,
		clock:    clk,
		log:      log.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/posts", s.submitPost)
		r.Post("/sweep", s.triggerSweep)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitPostRequest struct {
	PostURL string `json:"post_url"`
	Title   string `json:"title"`
}

// submitPost handles POST /v1/posts. This is where a correlation id is
// minted; every stage after this point copies it forward.
func (s *Server) submitPost(w http.ResponseWriter, r *http.Request) {
	var req submitPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.PostURL == "" {
		writeError(w, http.StatusBadRequest, "post_url required")
		return
	}

	corrID := uuid.NewString()
	msg := pipeline.CrawlMessage{
		CorrelationID: corrID,
		PostURL:       req.PostURL,
		Title:         req.Title,
		CreatedAt:     s.clock.Now().UTC(),
	}
	if err := s.producer.Publish(r.Context(), pipeline.CrawlQueue, corrID, msg); err != nil {
		s.log.Error("failed to enqueue post", zap.String("post_url", req.PostURL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue post")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"correlation_id": corrID})
}

// triggerSweep handles POST /v1/sweep, running one dead-letter sweep
// outside the regular cadence.
func (s *Server) triggerSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper unavailable")
		return
	}

	stats, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.log.Error("manual sweep failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	if stats == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "sweep already in progress"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scanned":            stats.Scanned,
		"requeued":           stats.Requeued,
		"permanent":          stats.Permanent,
		"republish_failures": stats.RepublishFailures,
	})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
