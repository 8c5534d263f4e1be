// Package server exposes the briefing pipeline over HTTP.
package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Server wraps the echo instance with lifecycle management.
type Server struct {
	e      *echo.Echo
	addr   string
	logger zerolog.Logger
}

// New builds the HTTP server and registers all routes.
func New(h *Handlers, addr string, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("http request")
			return nil
		},
	}))

	e.Server.ReadTimeout = 15 * time.Second
	// Narrative generation can take most of a minute on a slow model.
	e.Server.WriteTimeout = 120 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	registerRoutes(e, h)

	return &Server{e: e, addr: addr, logger: logger.With().Str("component", "server").Logger()}
}

func registerRoutes(e *echo.Echo, h *Handlers) {
	e.GET("/health", h.Health)
	e.GET("/explain", h.Explain)
	e.POST("/explain", h.Explain)
}

// Start serves HTTP requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.addr).Msg("http server listening")
	return s.e.Start(s.addr)
}

// Shutdown drains in-flight requests with a 10s deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.e.Shutdown(ctx)
}
