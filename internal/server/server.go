// Package server provides the HTTP API for Kikoe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kikoe/internal/config"
	"github.com/hyperjump/kikoe/internal/indexer"
	"github.com/hyperjump/kikoe/internal/search"
	"github.com/hyperjump/kikoe/internal/storage"
	"github.com/hyperjump/kikoe/internal/transcript"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Kikoe API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	source  transcript.Source
	store   storage.Store
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. src is the transcript
// source ingested by POST /update.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	src transcript.Source,
	store storage.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:  engine,
		indexer: idx,
		source:  src,
		store:   store,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/query", s.handleQuery)
	r.Post("/update", s.handleUpdate)
	r.Get("/api/v1/status", s.handleStatus)
	return r
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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
