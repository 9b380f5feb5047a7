// Package server exposes the local JSON API used by the kiosk screens.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Eskedar21/VIMS-sub000/internal/config"
	"github.com/Eskedar21/VIMS-sub000/internal/inspection"
	"github.com/Eskedar21/VIMS-sub000/internal/photocache"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
	"github.com/Eskedar21/VIMS-sub000/internal/syncer"
)

// Server is the local HTTP API.
type Server struct {
	recorder   *inspection.Recorder
	store      *store.Store
	sync       *syncer.Service
	cache      *photocache.Cache
	config     *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	started    time.Time
}

// NewServer creates a new Server instance. cache may be nil.
func NewServer(
	rec *inspection.Recorder,
	st *store.Store,
	svc *syncer.Service,
	cache *photocache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		recorder: rec,
		store:    st,
		sync:     svc,
		cache:    cache,
		config:   cfg,
		logger:   logger,
		started:  time.Now(),
	}
}

// Start serves the API on listenAddr until Shutdown.
func (s *Server) Start(listenAddr string) error {
	s.httpServer = &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", listenAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the API routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.setupRoutes())
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/inspections", s.handleCreateInspection)
	mux.HandleFunc("GET /api/inspections", s.handleListInspections)
	mux.HandleFunc("GET /api/inspections/{id}", s.handleGetInspection)
	mux.HandleFunc("DELETE /api/inspections/{id}", s.handleDeleteInspection)
	mux.HandleFunc("POST /api/inspections/{id}/finalize", s.handleFinalizeInspection)
	mux.HandleFunc("GET /api/search", s.handleSearch)

	mux.HandleFunc("GET /api/checklist", s.handleChecklist)
	mux.HandleFunc("GET /api/machine/sections", s.handleMachineSections)
	mux.HandleFunc("POST /api/machine/simulate", s.handleMachineSimulate)

	mux.HandleFunc("POST /api/sync", s.handleSync)
	mux.HandleFunc("GET /api/sync/pending", s.handleSyncPending)
	mux.HandleFunc("GET /api/sync/queue", s.handleSyncQueue)
	mux.HandleFunc("POST /api/sync/requeue", s.handleSyncRequeue)
	mux.HandleFunc("GET /api/sync/progress", s.handleSyncProgress)
	mux.HandleFunc("GET /api/sync/progress/stream", s.handleSyncProgressStream)

	mux.HandleFunc("GET /api/photos", s.handleListPhotos)
	mux.HandleFunc("GET /api/photos/{id}", s.handleGetPhotos)

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
