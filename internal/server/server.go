// Package server provides the HTTP API for Kotae.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/agent"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/index"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/session"
	"github.com/hyperjump/kotae/internal/tools"
)

// Server is the HTTP server for the Kotae API.
type Server struct {
	orchestrator *agent.Orchestrator
	index        *index.Index
	indexer      *indexer.Indexer
	registry     *tools.Registry
	sessions     *session.Store
	config       *config.Config
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	orchestrator *agent.Orchestrator,
	idx *index.Index,
	ix *indexer.Indexer,
	registry *tools.Registry,
	sessions *session.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		index:        idx,
		indexer:      ix,
		registry:     registry,
		sessions:     sessions,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents/upload", s.handleUpload)
		r.Post("/documents", s.handleIndexDocuments)
		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Delete("/documents", s.handleClearDocuments)
		r.Post("/search", s.handleSearch)
		r.Post("/chat", s.handleChat)
		r.Post("/files/insert", s.handleInsertText)
		r.Post("/sessions/{id}/reset", s.handleSessionReset)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
