package server

import (
	"fmt"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/internal/api"
	"github.com/labstack/echo/v4"
)

// handleHealth reports which targets can currently take a turn.
// GET /api/health
func (s *Server) handleHealth(c echo.Context) error {
	targets := map[string]bool{}
	for target, available := range s.pipeline.Available() {
		targets[string(target)] = available
	}
	return c.JSON(http.StatusOK, api.HealthResponse{Status: "ok", Targets: targets})
}

// handleReset clears a session's history.
// POST /api/session/reset
func (s *Server) handleReset(c echo.Context) error {
	var req api.ResetRequest
	if err := c.Bind(&req); err != nil {
		return newHTTPError(http.StatusBadRequest, "invalid request body", nil)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = sessionIDOf(c)
	}
	s.store.ClearSession(sessionID)
	return c.JSON(http.StatusOK, api.ResetResponse{SessionID: sessionID, Reset: true})
}

// handleHistory returns the entries of a session.
// GET /api/session/history
func (s *Server) handleHistory(c echo.Context) error {
	sessionID := c.QueryParam(api.FieldSessionID)
	if sessionID == "" {
		sessionID = c.Request().Header.Get(api.HeaderSessionID)
	}
	if sessionID == "" {
		sessionID = sessions.DefaultSessionID
	}

	history := s.store.GetHistory(sessionID)
	entries := []api.HistoryEntry{}
	if len(history) > 0 {
		if err := copier.Copy(&entries, history); err != nil {
			return fmt.Errorf("failed to map history: %w", err)
		}
	}
	for i := range entries {
		entries[i].Label = conversations.Speaker(entries[i].Speaker).Label()
	}
	return c.JSON(http.StatusOK, api.HistoryResponse{SessionID: sessionID, Entries: entries})
}

var turnSchema = jsonschema.Reflect(&api.TurnResponse{})

// handleSchema describes the turn response body.
// GET /api/schema
func (s *Server) handleSchema(c echo.Context) error {
	return c.JSON(http.StatusOK, turnSchema)
}
