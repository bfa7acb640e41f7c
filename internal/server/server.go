// Package server exposes the allocation engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nvandessel/tier-alloc/internal/config"
	"github.com/nvandessel/tier-alloc/internal/logging"
	"github.com/nvandessel/tier-alloc/internal/store"
	"github.com/nvandessel/tier-alloc/internal/strategy"
)

// shutdownTimeout bounds graceful shutdown once Run's context is done.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end for allocation runs.
type Server struct {
	router  *gin.Engine
	handler *Handler
	metrics *Metrics
	logger  *slog.Logger
	cfg     config.ServerConfig
}

// NewServer wires the router, API handler and metrics endpoint.
func NewServer(cfg config.ServerConfig, manager *strategy.Manager, st store.Store, logger *slog.Logger) *Server {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	metrics := NewMetrics()
	s := &Server{
		router:  gin.New(),
		handler: NewHandler(manager, st, metrics, logger),
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
	s.handler.SetRateLimit(cfg.AllocationsPerMinute)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery(), s.requestLogger())

	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := s.router.Group("/api")
	{
		s.handler.RegisterRoutes(api)
	}
}

// requestLogger logs each request and counts it by route and status.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		s.metrics.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"elapsed", time.Since(start),
		)
	}
}

// Handler returns the root http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's metrics collector.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
