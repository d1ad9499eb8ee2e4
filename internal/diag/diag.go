// Package diag provides the diagnostics HTTP server: health, prometheus
// metrics, backend status and usage summaries. It exposes observability data
// only; completion traffic never goes through it.
package diag

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmbridge/internal/backends"
	"llmbridge/internal/usage"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// New creates the diagnostics server. reader may be nil when the usage
// journal is disabled; the usage endpoints then report that.
func New(registry *backends.Registry, reader usage.Reader) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(registry, reader)

	e.Use(middleware.Recover())

	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/profiles", handler.Profiles)
	e.GET("/backends", handler.ListBackends)
	e.GET("/backends/:id", handler.GetBackend)
	e.POST("/backends/:id/test", handler.TestBackend)

	e.GET("/usage/summary", handler.UsageSummary)
	e.GET("/usage/periods", handler.UsagePeriods)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
