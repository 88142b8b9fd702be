package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StageTimings records how long each stage of a turn took.
type StageTimings struct {
	Transcription time.Duration
	Response      time.Duration
	Synthesis     time.Duration
	Total         time.Duration
}

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	SessionID     string
	Target        conversations.Speaker
	Transcript    string
	ResponseText  string
	Audio         []byte
	AudioMimeType string
	Timings       StageTimings
}

// Pipeline runs a single turn: it transcribes the human's audio, asks the
// target for a reply and speaks the reply. Both utterances are recorded in the
// session store as soon as they are known.
type Pipeline struct {
	store       *sessions.Store
	transcriber Transcriber
	responders  map[conversations.Speaker]Responder
	synthesizer Synthesizer
	voices      map[conversations.Speaker]texttospeech.VoiceConfig
}

func NewPipeline(store *sessions.Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:      store,
		responders: map[conversations.Speaker]Responder{},
		voices:     map[conversations.Speaker]texttospeech.VoiceConfig{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Available reports for every target whether the pipeline can run a turn
// for it.
func (p *Pipeline) Available() map[conversations.Speaker]bool {
	available := map[conversations.Speaker]bool{}
	for _, target := range conversations.Targets {
		_, ok := p.responders[target]
		available[target] = ok && p.transcriber != nil && p.synthesizer != nil
	}
	return available
}

// Runner binds the pipeline to a session so it can serve an [Orchestrator].
func (p *Pipeline) Runner(sessionID string) TurnRunner {
	return TurnRunnerFunc(func(ctx context.Context, snippet Snippet) (*TurnResult, error) {
		return p.RunTurn(ctx, sessionID, snippet.Audio, snippet.MimeType, snippet.Target)
	})
}

// RunTurn runs the three stages of a turn in order and stops at the first
// failing stage, returning a [*StageError]. Input problems are reported as
// [*ValidationError] before any stage runs.
func (p *Pipeline) RunTurn(ctx context.Context, sessionID string, audio []byte, mimeType string, target conversations.Speaker) (result *TurnResult, err error) {
	ctx, span := tracer.Start(ctx, "run turn", trace.WithAttributes(
		attribute.String("turn.session_id", sessionID),
		attribute.String("turn.target", string(target)),
		attribute.Int("turn.audio_bytes", len(audio)),
	))
	defer span.End()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		turnsTotal.WithLabelValues(string(target), status).Inc()
	}()

	responder, err := p.validate(audio, target)
	if err != nil {
		return nil, err
	}

	sessionID = p.store.EnsureSession(sessionID).ID
	result = &TurnResult{SessionID: sessionID, Target: target}
	turnStart := time.Now()

	transcript, elapsed, err := runStage(ctx, StageTranscription, target, func(ctx context.Context) (string, error) {
		return p.transcriber.Transcribe(ctx, audio, mimeType)
	})
	result.Timings.Transcription = elapsed
	if err != nil {
		return nil, err
	}
	result.Transcript = lastText(p.store.AppendEntry(sessionID, conversations.SpeakerHuman, transcript))

	responseText, elapsed, err := runStage(ctx, StageResponse, target, func(ctx context.Context) (string, error) {
		return responder.Respond(ctx, p.store.GetHistory(sessionID), target)
	})
	result.Timings.Response = elapsed
	if err != nil {
		return nil, err
	}
	result.ResponseText = lastText(p.store.AppendEntry(sessionID, target, responseText))

	voice := p.voices[target]
	speech, elapsed, err := runStage(ctx, StageSynthesis, target, func(ctx context.Context) ([]byte, error) {
		return p.synthesizer.Synthesize(ctx, result.ResponseText, voice)
	})
	result.Timings.Synthesis = elapsed
	if err != nil {
		return nil, err
	}
	result.Audio = speech
	result.AudioMimeType = voice.MimeType()
	result.Timings.Total = time.Since(turnStart)

	logger.Info("turn completed",
		"session_id", sessionID,
		"target", string(target),
		"total_ms", result.Timings.Total.Milliseconds(),
		"transcription_ms", result.Timings.Transcription.Milliseconds(),
		"response_ms", result.Timings.Response.Milliseconds(),
		"synthesis_ms", result.Timings.Synthesis.Milliseconds(),
	)
	return result, nil
}

func (p *Pipeline) validate(audio []byte, target conversations.Speaker) (Responder, error) {
	if len(audio) == 0 {
		return nil, newValidationError("audio", ErrInvalidAudio, "audio is empty")
	}
	if !target.IsTarget() {
		return nil, newValidationError("target", ErrUnknownTarget, fmt.Sprintf("unknown target %q", target))
	}

	responder, ok := p.responders[target]
	if !ok || p.transcriber == nil || p.synthesizer == nil {
		return nil, newValidationError("target", ErrTargetUnavailable, fmt.Sprintf("%s is not configured", target.Label()))
	}
	return responder, nil
}

// lastText returns the normalized text of the entry that was just appended.
func lastText(session sessions.Session) string {
	if len(session.Entries) == 0 {
		return ""
	}
	return session.Entries[len(session.Entries)-1].Text
}

func runStage[T any](ctx context.Context, stage Stage, target conversations.Speaker, run func(context.Context) (T, error)) (T, time.Duration, error) {
	ctx, span := tracer.Start(ctx, string(stage))
	defer span.End()

	start := time.Now()
	out, err := run(ctx)
	elapsed := time.Since(start)
	stageDuration.WithLabelValues(string(stage), string(target)).Observe(elapsed.Seconds())

	if err != nil {
		err = &StageError{Stage: stage, Target: target, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, elapsed, err
	}
	return out, elapsed, nil
}
