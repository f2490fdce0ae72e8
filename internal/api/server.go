// Package api exposes the local preview HTTP interface: the rendered
// static site, run history, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/galaxia-dev/starchive/internal/history"
)

// RunLister returns recent pipeline runs. *history.Store implements it.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]history.Run, error)
}

// Server serves the rendered archive for local browsing.
type Server struct {
	router  chi.Router
	siteDir string
	runs    RunLister
	log     *zap.Logger
}

// NewServer wires routes and middleware. gatherer may be nil when metrics
// are not collected.
func NewServer(siteDir string, runs RunLister, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	s := &Server{siteDir: siteDir, runs: runs, log: log}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware(log))

	r.Get("/healthz", s.healthz)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/api/runs", s.listRuns)
	r.Handle("/*", http.FileServer(http.Dir(siteDir)))

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		http.Error(w, `{"error":"run history not configured"}`, http.StatusServiceUnavailable)
		return
	}
	runs, err := s.runs.Recent(r.Context(), 50)
	if err != nil {
		s.log.Error("listing runs", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	type runView struct {
		ID         string    `json:"id"`
		Kind       string    `json:"kind"`
		Mode       string    `json:"mode,omitempty"`
		Target     string    `json:"target,omitempty"`
		StartedAt  time.Time `json:"started_at"`
		FinishedAt time.Time `json:"finished_at"`
		Pages      int       `json:"pages"`
		Saved      int       `json:"saved"`
		Skipped    int       `json:"skipped"`
		Failed     int       `json:"failed"`
		Outcome    string    `json:"outcome"`
		Note       string    `json:"note,omitempty"`
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView{
			ID:         run.ID.String(),
			Kind:       run.Kind,
			Mode:       run.Mode,
			Target:     run.Target,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Pages:      run.Pages,
			Saved:      run.Saved,
			Skipped:    run.Skipped,
			Failed:     run.Failed,
			Outcome:    run.Outcome,
			Note:       run.Note,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"runs": views})
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		id, _ := r.Context().Value(requestIDKey).(string)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("dur", time.Since(start)),
			zap.String("request_id", id))
	})
}

func recoverMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
