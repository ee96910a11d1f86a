// Package server provides the taskd REST surface: the authentication
// boundary, credential lifecycle endpoints, and the monitoring snapshot.
// The task CRUD layer and UI are external collaborators; their only
// contact with this core is the recording and auth middleware.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/config"
	"github.com/fyrsmithlabs/taskd/internal/credential"
	"github.com/fyrsmithlabs/taskd/internal/monitor"
)

// Server wraps echo with the taskd routes and middleware.
type Server struct {
	echo        *echo.Echo
	cfg         *config.ServerConfig
	logger      *zap.Logger
	monitor     *monitor.Monitor
	credentials *credential.Manager
	limiters    *ipLimiters
}

// New creates the HTTP server. All dependencies are required except that
// cfg falls back to defaults when nil.
func New(cfg *config.ServerConfig, mon *monitor.Monitor, creds *credential.Manager, logger *zap.Logger) (*Server, error) {
	if mon == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &config.ServerConfig{
			Host:       "localhost",
			Port:       8090,
			IssueRate:  1,
			IssueBurst: 5,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		cfg:         cfg,
		logger:      logger,
		monitor:     mon,
		credentials: creds,
		limiters:    newIPLimiters(cfg.IssueRate, cfg.IssueBurst),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.recordingMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	// Issuance is public but rate-limited per remote IP.
	v1.POST("/credentials", s.handleIssueCredential, s.issueRateLimit())

	authed := v1.Group("", s.bearerAuth())
	authed.GET("/credentials", s.handleListCredentials)
	authed.DELETE("/credentials/:id", s.handleRevokeCredential)

	mon := authed.Group("/monitoring", s.metricsGate())
	mon.GET("/metrics", s.handleMonitorSnapshot)
	mon.POST("/evaluate", s.handleMonitorEvaluate)
	mon.POST("/auth-spike", s.handleAuthSpike)
	mon.POST("/reset", s.handleMonitorReset)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying echo instance for route additions by the
// composition root and for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
