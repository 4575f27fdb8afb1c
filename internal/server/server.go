// Package server exposes digests, health and metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"teamdigest/internal/core"
	"teamdigest/internal/metrics"
)

// Today asks the builder for the current day on its timeline
const Today = -1

// ErrUnknownUser is returned by a DigestBuilder for an id it does not know
var ErrUnknownUser = errors.New("unknown user")

// DigestBuilder builds one digest on demand
type DigestBuilder interface {
	BuildDigest(ctx context.Context, userID string, day int) (core.Digest, error)
}

// Config holds HTTP server settings
type Config struct {
	Addr           string
	RequestTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	digests    DigestBuilder
	log        zerolog.Logger
}

// New creates a new HTTP server instance
func New(cfg Config, digests DigestBuilder, log zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		router:  chi.NewRouter(),
		digests: digests,
		log:     log,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/digests/{userID}", s.handleGetDigest)
	})

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleGetDigest handles GET /api/digests/{userID}?day=N
func (s *Server) handleGetDigest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	day := Today
	if raw := r.URL.Query().Get("day"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "day must be a non-negative integer")
			return
		}
		day = n
	}

	d, err := s.digests.BuildDigest(r.Context(), userID, day)
	switch {
	case errors.Is(err, ErrUnknownUser):
		s.respondError(w, http.StatusNotFound, "user not found")
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.respondError(w, http.StatusServiceUnavailable, "digest build cancelled")
		return
	case err != nil:
		s.log.Error().Err(err).Str("user_id", userID).Int("day", day).Msg("Failed to build digest")
		s.respondError(w, http.StatusInternalServerError, "failed to build digest")
		return
	}
	s.respondJSON(w, http.StatusOK, d)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"status":  status,
			"message": message,
		},
	})
}
