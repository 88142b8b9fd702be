package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-duet/internal/api"
	"github.com/labstack/echo/v4"
)

const requestIDKey = "requestId"

func requestID(c echo.Context) string {
	if id, ok := c.Get(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// requestLogger tags every API request with an id and logs it on the way in
// and out.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Response().Header().Set(api.HeaderRequestID, id)

		logger.Info("request started",
			"request_id", id,
			"method", req.Method,
			"path", req.URL.Path,
			"remote_ip", c.RealIP(),
		)

		err := next(c)
		if err != nil {
			// Let the error handler write the response so the status below
			// is the one the client sees.
			c.Error(err)
		}

		status := c.Response().Status
		elapsed := time.Since(start)
		sessionCount := s.store.ActiveCount()
		activeSessions.Set(float64(sessionCount))
		requestsTotal.WithLabelValues(req.Method, c.Path(), strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(req.Method, c.Path()).Observe(elapsed.Seconds())

		logger.Info("request finished",
			"request_id", id,
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"sessions", sessionCount,
		)
		return nil
	}
}

// rateLimit rejects clients that exceeded their request budget.
func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		decision := s.limiter.Check(c.RealIP())
		if decision.Allowed {
			return next(c)
		}

		c.Response().Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
		logger.Warn("rate limit exceeded",
			"request_id", requestID(c),
			"remote_ip", c.RealIP(),
			"retry_after", decision.RetryAfter,
		)
		return c.JSON(http.StatusTooManyRequests, api.ErrorResponse{
			Error: "Too many requests. Please slow down.",
			Details: api.RateLimitDetails{
				Limit:      decision.Limit,
				WindowMs:   s.limiter.Window().Milliseconds(),
				RetryAfter: decision.RetryAfter,
			},
			RequestID: requestID(c),
		})
	}
}
