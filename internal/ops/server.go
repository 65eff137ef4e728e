// Package ops exposes the operational HTTP surface shared by both daemons:
// liveness, Prometheus metrics, and a read-only status view of the watched
// URLs.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praksys/wsmonitor/internal/metric"
	"github.com/praksys/wsmonitor/internal/metrics"
	"github.com/praksys/wsmonitor/internal/storage/postgres"
)

// StatusSource reads the latest persisted state per watched URL.
type StatusSource interface {
	Status(ctx context.Context) ([]postgres.StatusRow, error)
}

// Server wires the ops routes to the status source.
type Server struct {
	router chi.Router
	source StatusSource
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(source StatusSource, logger *zap.Logger) *Server {
	s := &Server{source: source, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/status", s.status)

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

type statusEntry struct {
	ID     int64         `json:"id"`
	URL    string        `json:"url"`
	Regexp *string       `json:"regexp,omitempty"`
	Latest *latestMetric `json:"latest"`
}

type latestMetric struct {
	Timestamp    time.Time `json:"time_stamp"`
	ResponseTime int64     `json:"response_time_ms"`
	ReturnCode   int       `json:"return_code"`
	RegexCheck   bool      `json:"regex_check"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	rows, err := s.source.Status(r.Context())
	if err != nil {
		s.logger.Error("status query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}

	out := make([]statusEntry, 0, len(rows))
	for _, row := range rows {
		e := statusEntry{ID: row.ID, URL: row.URL, Regexp: row.Regexp}
		if row.Latest != nil {
			e.Latest = toLatest(*row.Latest)
		}
		out = append(out, e)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"websites": out})
}

func toLatest(m metric.Metric) *latestMetric {
	return &latestMetric{
		Timestamp:    m.Timestamp,
		ResponseTime: m.ResponseTime,
		ReturnCode:   m.ReturnCode,
		RegexCheck:   m.RegexCheck,
	}
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

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
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
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
