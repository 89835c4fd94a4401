// Package api exposes the HTTP surface of the monitoring service: the
// provider webhook and the report endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/metrics"
	"github.com/daniel7634/amzwatch/internal/monitor"
	"github.com/daniel7634/amzwatch/internal/reports"
	"github.com/daniel7634/amzwatch/internal/webhook"
)

// WebhookProcessor handles provider completion notifications.
type WebhookProcessor interface {
	Process(ctx context.Context, event webhook.Event) (webhook.Summary, error)
}

// ReportSubmitter accepts report requests.
type ReportSubmitter interface {
	Submit(ctx context.Context, params monitor.ReportParameters) (reports.SubmitResult, error)
}

// Server wires HTTP handlers to the pipeline components.
type Server struct {
	router     chi.Router
	correlator WebhookProcessor
	submitter  ReportSubmitter
	jobs       monitor.ReportStore
	ready      func(ctx context.Context) error
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready is
// consulted by the readiness probe; nil means always ready.
func NewServer(
	correlator WebhookProcessor,
	submitter ReportSubmitter,
	jobs monitor.ReportStore,
	ready func(ctx context.Context) error,
	requestTimeout time.Duration,
	logger *zap.Logger,
) *Server {
	s := &Server{
		correlator: correlator,
		submitter:  submitter,
		jobs:       jobs,
		ready:      ready,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if requestTimeout > 0 {
		r.Use(timeoutMiddleware(requestTimeout))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/webhook/amazon-products", s.handleWebhook)

	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Post("/competitor", s.submitReport)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/status", s.reportStatus)
			r.Get("/download", s.downloadReport)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

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
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
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

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
