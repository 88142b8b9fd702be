package server

import (
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/core/speechtotext"
	"github.com/koscakluka/ema-duet/internal/api"
	"github.com/labstack/echo/v4"
)

// handleTurn runs a turn for the target in the path.
// POST /api/turns/:target
func (s *Server) handleTurn(c echo.Context) error {
	response, err := s.runTurn(c, c.Param("target"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, response)
}

// legacyTurn serves the per-target routes, which also return the response
// text under the responder's name.
func (s *Server) legacyTurn(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		response, err := s.runTurn(c, name)
		if err != nil {
			return err
		}
		switch conversations.Speaker(response.Target) {
		case conversations.SpeakerCoHost:
			response.ClaudeText = response.ResponseText
		case conversations.SpeakerGuest:
			response.GuestText = response.ResponseText
		}
		return c.JSON(http.StatusOK, response)
	}
}

func (s *Server) runTurn(c echo.Context, name string) (*api.TurnResponse, error) {
	target, err := conversations.ParseTarget(name)
	if err != nil {
		return nil, newHTTPError(http.StatusBadRequest, err.Error(), map[string]any{
			"supportedTargets": conversations.Targets,
		})
	}

	audio, mimeType, err := readAudio(c)
	if err != nil {
		return nil, err
	}

	sessionID := sessionIDOf(c)
	if resetRequested(c) {
		s.store.ClearSession(sessionID)
		logger.Info("session reset before turn", "request_id", requestID(c), "session_id", sessionID)
	}

	result, err := s.pipeline.RunTurn(c.Request().Context(), sessionID, audio, mimeType, target)
	if err != nil {
		return nil, err
	}
	return turnResponse(result), nil
}

// readAudio validates and reads the uploaded audio file.
func readAudio(c echo.Context) ([]byte, string, error) {
	header, err := c.FormFile(api.FieldAudio)
	if err != nil {
		return nil, "", newHTTPError(http.StatusBadRequest, "Audio file is required", nil)
	}
	if header.Size == 0 {
		return nil, "", newHTTPError(http.StatusBadRequest, "Audio file is empty", nil)
	}
	if header.Size > api.MaxAudioSize {
		return nil, "", newHTTPError(http.StatusRequestEntityTooLarge, "Audio upload exceeds the 25MB limit.", nil)
	}

	mimeType := speechtotext.BaseMimeType(header.Header.Get(echo.HeaderContentType))
	if !slices.Contains(api.SupportedAudioTypes, mimeType) {
		if mimeType == "" {
			mimeType = "unknown"
		}
		return nil, "", newHTTPError(http.StatusUnsupportedMediaType,
			fmt.Sprintf("Unsupported audio type: %s", mimeType),
			map[string]any{"supportedTypes": api.SupportedAudioTypes},
		)
	}

	file, err := header.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open uploaded audio: %w", err)
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read uploaded audio: %w", err)
	}
	return audio, mimeType, nil
}

func sessionIDOf(c echo.Context) string {
	if id := c.FormValue(api.FieldSessionID); id != "" {
		return id
	}
	if id := c.Request().Header.Get(api.HeaderSessionID); id != "" {
		return id
	}
	return sessions.DefaultSessionID
}

func resetRequested(c echo.Context) bool {
	flag := c.FormValue(api.FieldResetSession)
	if flag == "" {
		flag = c.Request().Header.Get(api.HeaderResetSession)
	}
	return flag == "true" || flag == "1"
}

func turnResponse(result *orchestration.TurnResult) *api.TurnResponse {
	return &api.TurnResponse{
		SessionID:    result.SessionID,
		Target:       string(result.Target),
		Transcript:   result.Transcript,
		ResponseText: result.ResponseText,
		Audio:        result.Audio,
		MimeType:     result.AudioMimeType,
		Timings: api.Timings{
			TotalMs:         result.Timings.Total.Milliseconds(),
			TranscriptionMs: result.Timings.Transcription.Milliseconds(),
			ResponseMs:      result.Timings.Response.Milliseconds(),
			SynthesisMs:     result.Timings.Synthesis.Milliseconds(),
		},
	}
}
