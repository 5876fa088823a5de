// Package server provides the HTTP API for the question bank service
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toniwang/geyago/internal/config"
	"github.com/toniwang/geyago/internal/providers"
	"github.com/toniwang/geyago/internal/qa"
	"github.com/toniwang/geyago/internal/storage"
	"github.com/toniwang/geyago/pkg/utils"
)

// Server serves the question bank API
type Server struct {
	cfg      *config.Manager
	logger   *utils.Logger
	engine   *gin.Engine
	server   *http.Server
	resolver *qa.Service
	registry *providers.Registry
	ai       *providers.Manager
	db       *storage.Database
	started  time.Time
}

// New creates the HTTP server and wires all routes
func New(cfg *config.Manager, resolver *qa.Service, registry *providers.Registry, ai *providers.Manager, db *storage.Database, logger *utils.Logger) *Server {
	if cfg.Get().Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(requestLoggingMiddleware(logger))

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		engine:   engine,
		resolver: resolver,
		registry: registry,
		ai:       ai,
		db:       db,
		started:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/query", s.handleQuery)
		api.GET("/search", s.handleSearch)
		api.GET("/recent", s.handleRecent)
		api.GET("/stats", s.handleStats)
		api.GET("/health", s.handleHealth)
		api.GET("/config", s.handleClientConfig)

		api.POST("/questions", s.handleAddQuestion)
		api.GET("/questions", s.handleListQuestions)
		api.DELETE("/questions/:id", s.handleDeleteQuestion)

		ai := api.Group("/ai")
		{
			ai.GET("/providers", s.handleListProviders)
			ai.POST("/providers/:id/set-default", s.handleSetDefault)
			ai.POST("/providers/:id/test", s.handleProbeProvider)
			ai.GET("/providers/:id/models", s.handleListModels)
			ai.POST("/providers/:id/models", s.handleAddModel)
			ai.DELETE("/providers/:id/models/*model", s.handleRemoveModel)
			ai.GET("/config", s.handleGetAIConfig)
			ai.POST("/config", s.handleUpdateAIConfig)
		}
	}
}

// Start runs the server until it is shut down
func (s *Server) Start() error {
	serverCfg := s.cfg.Get().Server
	addr := fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.WithField("address", addr).Info("Starting question bank server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down question bank server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.engine
}
