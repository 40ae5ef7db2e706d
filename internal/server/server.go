// Package server wires the HTTP surface of webhookd: routing, request
// logging, and the handlers for ingestion, querying, stats, health, and
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/webhookd/internal/config"
	"github.com/edgard/webhookd/internal/database"
	"github.com/edgard/webhookd/internal/ingest"
	"github.com/edgard/webhookd/internal/metrics"
)

// Server hosts the HTTP API.
type Server struct {
	cfg         *config.Config
	store       database.Store
	coordinator *ingest.Coordinator
	collector   *metrics.Collector
	logger      *slog.Logger
	router      *gin.Engine
}

// New creates the HTTP server and registers all routes.
func New(
	cfg *config.Config,
	store database.Store,
	coordinator *ingest.Coordinator,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:         cfg,
		store:       store,
		coordinator: coordinator,
		collector:   collector,
		logger:      logger.With("component", "server"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.POST("/webhook", s.handleWebhook)
	router.GET("/messages", s.handleListMessages)
	router.GET("/stats", s.handleStats)
	router.GET("/health/live", s.handleHealthLive)
	router.GET("/health/ready", s.handleHealthReady)
	router.GET("/metrics", s.handleMetrics)

	s.router = router
	return s
}

// Router returns the underlying gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting HTTP listener...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listener stopped unexpectedly: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("Shutdown signal received, stopping HTTP listener...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Error shutting down HTTP listener", "error", err)
			return fmt.Errorf("failed to shut down http listener: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	s.logger.Info("HTTP server stopped gracefully.")
	return nil
}
