// Package httpapi exposes the acquisition trigger, health and metrics over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/ports"
)

const (
	maxBodyBytes    = 1 << 16
	shutdownTimeout = 15 * time.Second
)

// Pinger reports store reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunBody is the JSON accepted by POST /api/v1/captacao/run.
type RunBody struct {
	Days       int      `json:"days" validate:"gte=0,lte=90"`
	Start      string   `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End        string   `json:"end" validate:"omitempty,datetime=2006-01-02"`
	Regions    []string `json:"regions" validate:"dive,len=2,alpha"`
	Categories []string `json:"categories" validate:"dive,required"`
	Sources    []string `json:"sources" validate:"dive,required"`
	FilterIDs  []string `json:"filter_ids" validate:"dive,uuid"`
	MaxPages   int      `json:"max_pages" validate:"gte=0"`
	TimeBudget string   `json:"time_budget"`
}

// Server routes HTTP calls to the trigger.
type Server struct {
	router   chi.Router
	trigger  ports.Trigger
	health   Pinger
	validate *validator.Validate
	location *time.Location
	logger   *slog.Logger
}

// NewServer builds the router. health may be nil.
func NewServer(trigger ports.Trigger, health Pinger, loc *time.Location, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		trigger:  trigger,
		health:   health,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		location: loc,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/captacao/run", s.handleRun)
	})
	s.router = r
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body RunBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.toRequest(s.location)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := s.trigger.Run(r.Context(), req)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "report": report})
	case err != nil:
		s.logger.Error("run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (b RunBody) toRequest(loc *time.Location) (domain.RunRequest, error) {
	req := domain.RunRequest{
		Days:       b.Days,
		Regions:    upper(b.Regions),
		Categories: b.Categories,
		Sources:    b.Sources,
		MaxPages:   b.MaxPages,
	}
	if b.Start != "" || b.End != "" {
		start, err := time.ParseInLocation(time.DateOnly, b.Start, loc)
		if err != nil {
			return req, fmt.Errorf("start: %w", err)
		}
		end, err := time.ParseInLocation(time.DateOnly, b.End, loc)
		if err != nil {
			return req, fmt.Errorf("end: %w", err)
		}
		req.Start, req.End = &start, &end
	}
	for _, raw := range b.FilterIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, fmt.Errorf("filter id %q: %w", raw, err)
		}
		req.FilterIDs = append(req.FilterIDs, id)
	}
	if b.TimeBudget != "" {
		d, err := time.ParseDuration(b.TimeBudget)
		if err != nil || d < 0 {
			return req, fmt.Errorf("time_budget %q is not a positive duration", b.TimeBudget)
		}
		req.TimeBudget = d
	}
	return req, nil
}

func upper(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToUpper(strings.TrimSpace(v)))
	}
	return out
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
