// Package server exposes the pipeline over HTTP for operator and UI
// collaborators.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/everyplants/batchmaker/internal/pipeline"
	"github.com/everyplants/batchmaker/internal/store"
)

// Server is the HTTP server for the batchmaker service.
type Server struct {
	port     int
	pipeline *pipeline.Pipeline
	logger   *otelzap.Logger
}

// Config holds server configuration.
type Config struct {
	Port int
}

// New creates a new server instance.
func New(cfg Config, p *pipeline.Pipeline, logger *otelzap.Logger) *Server {
	return &Server{
		port:     cfg.Port,
		pipeline: p,
		logger:   logger,
	}
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // batch submission processes synchronously
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/batches", s.handleSubmitBatch)
	mux.HandleFunc("POST /api/batches/{id}/process", s.handleProcessBatch)
	mux.HandleFunc("POST /api/batches/{id}/retry", s.handleRetryBatch)
	mux.HandleFunc("GET /api/batches/{id}/status", s.handleBatchStatus)
	mux.HandleFunc("POST /api/sessions/{id}/ship-all", s.handleShipAll)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result, err := s.pipeline.SubmitBatch(r.Context(), &req)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	progress, err := s.pipeline.ProcessBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleRetryBatch(w http.ResponseWriter, r *http.Request) {
	progress, err := s.pipeline.RetryBatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.pipeline.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}

func (s *Server) handleShipAll(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ShipAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	req.SessionID = r.PathValue("id")

	result, err := s.pipeline.ShipAll(r.Context(), &req)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// validationResponse is the 422 body carrying the complete violation list so
// the caller can fix and resubmit.
type validationResponse struct {
	Success    bool                      `json:"success"`
	Error      string                    `json:"error"`
	Violations []pipeline.OrderViolation `json:"violations"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:      "batch validation failed",
			Violations: verr.Violations,
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Warn("Request failed", zap.Int("status", status), zap.Error(err))
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Encoding response", zap.Error(err))
	}
}
