// Package server exposes the document function over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Lllllllleong/docsupervisor/internal/models"
	"github.com/Lllllllleong/docsupervisor/internal/services"
)

// DocumentProcessor runs one invocation.
type DocumentProcessor interface {
	Process(ctx context.Context, req models.ProcessDocumentRequest) (*models.ProcessDocumentResponse, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// ProcessHandler decodes a ProcessDocumentRequest, runs it and writes the
// response. Input errors are answered with 400, anything else with 500.
func ProcessHandler(processor DocumentProcessor, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ProcessDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("Could not decode request body")
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not parse JSON"})
			return
		}

		res, err := processor.Process(r.Context(), req)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, services.ErrInvalidInput) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves invocations the way an agent runtime calls them:
// POST /invocations, GET /ping and GET /metrics.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	processor  DocumentProcessor
	gatherer   prometheus.Gatherer
	config     Config
	logger     zerolog.Logger
}

// NewServer creates a Server. gatherer backs /metrics.
func NewServer(cfg Config, processor DocumentProcessor, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		processor: processor,
		gatherer:  gatherer,
		config:    cfg,
		logger:    logger.With().Str("component", "http-server").Logger(),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ping", s.pingHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Post("/invocations", ProcessHandler(s.processor, s.logger))
	return r
}

func (s *Server) pingHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Healthy"})
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.httpServer.Shutdown(shutdownCtx)
}
