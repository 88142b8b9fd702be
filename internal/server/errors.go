package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/speechtotext"
	"github.com/koscakluka/ema-duet/internal/api"
	"github.com/labstack/echo/v4"
)

// httpError is a failure with a status and an optional details payload.
type httpError struct {
	status  int
	message string
	details any
}

func (e *httpError) Error() string { return e.message }

func newHTTPError(status int, message string, details any) *httpError {
	return &httpError{status: status, message: message, details: details}
}

// statusOf maps a turn failure to the status reported to clients.
func statusOf(err error) int {
	var validationErr *orchestration.ValidationError
	var stageErr *orchestration.StageError
	switch {
	case errors.As(err, &validationErr):
		if errors.Is(err, orchestration.ErrTargetUnavailable) {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadRequest
	case errors.As(err, &stageErr):
		if errors.Is(err, speechtotext.ErrEmptyTranscript) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleError writes every error that reaches echo as a JSON body.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusOf(err)
	message := err.Error()
	var details any

	var httpErr *httpError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		status, message, details = httpErr.status, httpErr.message, httpErr.details
	case errors.As(err, &echoErr):
		status = echoErr.Code
		message = fmt.Sprint(echoErr.Message)
		if status == http.StatusRequestEntityTooLarge {
			message = "Audio upload exceeds the 25MB limit."
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "request_id", requestID(c), "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "request_id", requestID(c), "status", status, "error", message)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	if err := c.JSON(status, api.ErrorResponse{Error: message, Details: details, RequestID: requestID(c)}); err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}
