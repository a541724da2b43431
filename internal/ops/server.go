// Package ops provides the operational HTTP surface: health and metrics.
package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthProbe reports whether a backing dependency is reachable.
type HealthProbe func(ctx context.Context) bool

// Server serves GET /health and GET /metrics.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
	config Config

	store    HealthProbe
	docstore HealthProbe
}

// Config holds ops server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the ops server. docstore may be nil when the external
// document store is disabled.
func NewServer(store HealthProbe, docstore HealthProbe, logger *zap.Logger, cfg Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("state store health probe is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9091
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
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

	s := &Server{
		echo:     e,
		logger:   logger,
		config:   cfg,
		store:    store,
		docstore: docstore,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	DocumentStore string `json:"document_store,omitempty"`
}

// handleHealth reports the process and dependency status. Dependency
// outages report "degraded" with a 200 because the daemon keeps serving
// reads on defaults; only the process itself going down is fatal.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	resp := HealthResponse{Status: "ok", Store: "ok"}
	if !s.store(ctx) {
		resp.Status = "degraded"
		resp.Store = "unavailable"
	}
	if s.docstore != nil {
		resp.DocumentStore = "ok"
		if !s.docstore(ctx) {
			resp.Status = "degraded"
			resp.DocumentStore = "unavailable"
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting ops server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server")
	return s.echo.Shutdown(ctx)
}
