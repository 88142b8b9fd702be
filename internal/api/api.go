// Package api holds the request and response bodies of the duet HTTP API.
package api

import "time"

const (
	HeaderSessionID    = "X-Session-Id"
	HeaderResetSession = "X-Reset-Session"
	HeaderRequestID    = "X-Request-Id"

	FieldAudio        = "audio"
	FieldSessionID    = "sessionId"
	FieldResetSession = "resetSession"

	// MaxAudioSize is the largest accepted audio upload.
	MaxAudioSize = 25 * 1024 * 1024
)

// SupportedAudioTypes lists the accepted upload MIME types.
var SupportedAudioTypes = []string{
	"audio/webm",
	"audio/wav",
	"audio/mpeg",
	"audio/mp4",
	"audio/ogg",
	"audio/x-m4a",
}

// TurnResponse is returned for a completed turn.
type TurnResponse struct {
	SessionID    string `json:"sessionId"`
	Target       string `json:"target" jsonschema:"enum=cohost,enum=guest"`
	Transcript   string `json:"transcript"`
	ResponseText string `json:"responseText"`
	// Audio is the spoken response, base64 encoded.
	Audio    []byte  `json:"audio"`
	MimeType string  `json:"mimeType"`
	Timings  Timings `json:"timings"`

	// Legacy routes also carry the response under the responder's name.
	ClaudeText string `json:"claudeText,omitempty"`
	GuestText  string `json:"guestText,omitempty"`
}

type Timings struct {
	TotalMs         int64 `json:"totalMs"`
	TranscriptionMs int64 `json:"transcriptionMs"`
	ResponseMs      int64 `json:"responseMs"`
	SynthesisMs     int64 `json:"synthesisMs"`
}

type HealthResponse struct {
	Status  string          `json:"status"`
	Targets map[string]bool `json:"targets"`
}

type ResetRequest struct {
	SessionID string `json:"sessionId" form:"sessionId"`
}

type ResetResponse struct {
	SessionID string `json:"sessionId"`
	Reset     bool   `json:"reset"`
}

type HistoryEntry struct {
	Speaker   string    `json:"speaker"`
	Label     string    `json:"label"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryResponse struct {
	SessionID string         `json:"sessionId"`
	Entries   []HistoryEntry `json:"entries"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Path      string `json:"path,omitempty"`
}

type RateLimitDetails struct {
	Limit      int   `json:"limit"`
	WindowMs   int64 `json:"windowMs"`
	RetryAfter int   `json:"retryAfter"`
}
