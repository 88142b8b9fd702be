// Package server exposes the turn pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/ratelimit"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/internal/api"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// bodyLimit leaves room for the multipart envelope around the audio file.
const bodyLimit = "26M"

// Server serves turns for both targets along with session management,
// health, schema and metrics endpoints.
type Server struct {
	echo     *echo.Echo
	pipeline *orchestration.Pipeline
	store    *sessions.Store
	limiter  *ratelimit.Limiter
	registry *prometheus.Registry
}

func New(pipeline *orchestration.Pipeline, store *sessions.Store, limiter *ratelimit.Limiter) *Server {
	s := &Server{
		echo:     echo.New(),
		pipeline: pipeline,
		store:    store,
		limiter:  limiter,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(orchestration.Collectors()...)
	s.registry.MustRegister(ratelimit.Collectors()...)
	s.registry.MustRegister(collectors()...)

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "no-referrer",
	}))
	s.echo.Use(echo.WrapMiddleware(otelhttp.NewMiddleware("ema-duet")))
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	apiGroup := s.echo.Group("/api", s.requestLogger, s.rateLimit)

	apiGroup.POST("/turns/:target", s.handleTurn, middleware.BodyLimit(bodyLimit))
	apiGroup.POST("/cohost", s.legacyTurn("cohost"), middleware.BodyLimit(bodyLimit))
	apiGroup.POST("/claude", s.legacyTurn("claude"), middleware.BodyLimit(bodyLimit))
	apiGroup.POST("/guest", s.legacyTurn("guest"), middleware.BodyLimit(bodyLimit))

	apiGroup.GET("/health", s.handleHealth)
	apiGroup.POST("/session/reset", s.handleReset)
	apiGroup.GET("/session/history", s.handleHistory)
	apiGroup.GET("/schema", s.handleSchema)
	apiGroup.RouteNotFound("/*", s.handleNotFound)

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
}

// Handler returns the server as an [http.Handler].
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on address until [Server.Shutdown] is called.
func (s *Server) Start(address string) error {
	logger.Info("server listening", "address", address)
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleNotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, api.ErrorResponse{
		Error:     "API endpoint not found",
		Path:      c.Request().URL.Path,
		RequestID: requestID(c),
	})
}
