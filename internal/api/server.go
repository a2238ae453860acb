package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tesfandiari1/llms.txt/internal/config"
	"github.com/tesfandiari1/llms.txt/internal/digest"
	"github.com/tesfandiari1/llms.txt/internal/logging"
	"github.com/tesfandiari1/llms.txt/internal/metrics"
)

// Submitter enqueues pipeline work for a job.
type Submitter interface {
	Submit(ctx context.Context, jobID string, entrypoint digest.Entrypoint) error
}

// Server wires HTTP handlers to the repository, artifact store and queue.
type Server struct {
	router    chi.Router
	repo      digest.Repository
	submitter Submitter
	store     digest.ArtifactStore
	ids       digest.IDGenerator
	clock     digest.Clock
	cfg       config.Config
	logger    *zap.Logger
}

const requestTimeout = 60 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(
	repo digest.Repository,
	submitter Submitter,
	store digest.ArtifactStore,
	ids digest.IDGenerator,
	clock digest.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		repo:      repo,
		submitter: submitter,
		store:     store,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logging.OrNop(logger).Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(corsMiddleware(cfg.Server.CORSOrigins))
	r.Use(metrics.Middleware)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/api", func(r chi.Router) {
			r.Post("/jobs", s.createJob)
			r.Route("/jobs/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/pages", s.listPages)
				r.Patch("/pages", s.updatePages)
				r.Post("/generate", s.triggerGeneration)
				r.Get("/download", s.downloadLinkIndex)
				r.Get("/download/{file_type}", s.downloadFile)
			})
			r.Get("/files/*", s.serveFile)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database connection failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeRepoError maps repository errors onto status codes.
func (s *Server) writeRepoError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, digest.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, digest.ErrInvalidState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
