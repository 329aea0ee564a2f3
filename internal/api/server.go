// Package api exposes the operator HTTP interface for a running archive
// pass: liveness, Prometheus metrics, the live run report, and the failure
// ledger listing.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkvault/internal/archive"
	"github.com/JakeFAU/linkvault/internal/metrics"
	"github.com/JakeFAU/linkvault/internal/pipeline"
)

// ReportSource provides the live outcome tallies of the current run.
type ReportSource interface {
	Snapshot() pipeline.Summary
}

// FailureSource lists the failure ledger.
type FailureSource interface {
	Records() []archive.FailureRecord
}

// Server wires HTTP handlers to the run report and the ledger.
type Server struct {
	router   chi.Router
	report   ReportSource
	failures FailureSource
	clock    archive.Clock
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(report ReportSource, failures FailureSource, clock archive.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		report:   report,
		failures: failures,
		clock:    clock,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/report", s.getReport)
		r.Get("/failures", s.getFailures)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getReport(w http.ResponseWriter, _ *http.Request) {
	if s.report == nil {
		writeError(s.logger, w, http.StatusNotFound, "no run in progress")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, reportResponse{
		GeneratedAt: s.clock.Now(),
		Report:      s.report.Snapshot(),
	})
}

func (s *Server) getFailures(w http.ResponseWriter, r *http.Request) {
	if s.failures == nil {
		writeError(s.logger, w, http.StatusNotFound, "ledger unavailable")
		return
	}
	records := s.failures.Records()
	if r.URL.Query().Get("state") == "permanent" {
		filtered := make([]archive.FailureRecord, 0, len(records))
		for _, record := range records {
			if record.Permanent {
				filtered = append(filtered, record)
			}
		}
		records = filtered
	}
	writeJSON(s.logger, w, http.StatusOK, failuresResponse{Failures: records, Count: len(records)})
}

type reportResponse struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Report      pipeline.Summary `json:"report"`
}

type failuresResponse struct {
	Failures []archive.FailureRecord `json:"failures"`
	Count    int                     `json:"count"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(logger, w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
