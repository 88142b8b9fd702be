package orchestration

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-duet/core/conversations"
)

var (
	ErrInvalidAudio       = errors.New("invalid audio")
	ErrUnknownTarget      = errors.New("unknown target")
	ErrTargetUnavailable  = errors.New("target unavailable")
	ErrOrchestratorClosed = errors.New("orchestrator closed")
)

// ValidationError is returned when a turn is rejected before it is
// dispatched. It wraps one of the Err* sentinels.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func newValidationError(field string, err error, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

// Stage names a step of the turn pipeline.
type Stage string

const (
	StageTranscription Stage = "transcription"
	StageResponse      Stage = "response"
	StageSynthesis     Stage = "synthesis"
)

// StageError reports the pipeline stage that failed a turn.
type StageError struct {
	Stage  Stage
	Target conversations.Speaker
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Target, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
