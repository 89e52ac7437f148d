package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/backup-monitor/internal/config"
	"github.com/miradorstack/backup-monitor/internal/services"
	"github.com/miradorstack/backup-monitor/internal/utils"
)

// Server exposes the read-only dashboard HTTP API over the latest monitoring
// snapshot.
type Server struct {
	cfg        config.ServerConfig
	logger     *slog.Logger
	monitor    *services.MonitorService
	httpServer *http.Server
}

// NewServer builds the router and binds it to the configured address.
func NewServer(cfg config.ServerConfig, monitor *services.MonitorService, logger *slog.Logger) *Server {
	logger = utils.ComponentLogger(logger, "api")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		monitor: monitor,
	}

	router.GET("/healthz", s.handleHealth)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/dashboard", s.handleDashboard)
		v1.GET("/aggregates/:granularity", s.handleAggregates)
		v1.GET("/comparisons/:granularity", s.handleComparisons)
		v1.GET("/anomalies", s.handleAnomalies)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Start serves requests until Shutdown is invoked.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GracefulTimeout returns the configured graceful timeout duration.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
