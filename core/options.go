package orchestration

import (
	"context"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/texttospeech"
)

// Transcriber turns a recorded utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Responder produces the reply of role to the conversation so far.
type Responder interface {
	Respond(ctx context.Context, history []conversations.Entry, role conversations.Speaker) (string, error)
}

// Synthesizer speaks text with the given voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice texttospeech.VoiceConfig) ([]byte, error)
}

// Recorder captures the audio of a single snippet. Begin starts a new capture
// and Finish ends it, returning everything captured since Begin.
//
// Recorder methods are called with the orchestrator's state locked and must
// not call back into the orchestrator.
type Recorder interface {
	Begin(ctx context.Context) error
	Finish() (audio []byte, mimeType string, err error)
}

// TurnRunner processes a finished snippet. Implementations are the in-process
// [Pipeline] and remote clients.
type TurnRunner interface {
	RunTurn(ctx context.Context, snippet Snippet) (*TurnResult, error)
}

// TurnRunnerFunc adapts a function to [TurnRunner].
type TurnRunnerFunc func(ctx context.Context, snippet Snippet) (*TurnResult, error)

func (f TurnRunnerFunc) RunTurn(ctx context.Context, snippet Snippet) (*TurnResult, error) {
	return f(ctx, snippet)
}

type OrchestratorOption func(*Orchestrator)

func WithRecorder(recorder Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = recorder }
}

func WithTurnRunner(runner TurnRunner) OrchestratorOption {
	return func(o *Orchestrator) { o.runner = runner }
}

// WithRecordingStateCallback adds a callback invoked whenever a recording
// starts (true) or stops (false). Callbacks run in registration order.
// Hands-free mode uses it to keep the voice activity monitor informed.
//
// The callback runs with the orchestrator's state locked and must not call
// back into the orchestrator.
func WithRecordingStateCallback(callback func(recording bool)) OrchestratorOption {
	return func(o *Orchestrator) {
		if callback != nil {
			o.onRecordingState = append(o.onRecordingState, callback)
		}
	}
}

// WithSnippetStateCallback registers a callback for snippet lifecycle
// transitions.
//
// The callback runs with the orchestrator's state locked and must not call
// back into the orchestrator.
func WithSnippetStateCallback(callback func(snippet SnippetInfo)) OrchestratorOption {
	return func(o *Orchestrator) { o.onSnippetState = callback }
}

// WithTurnCompleteCallback registers a callback invoked after each dispatched
// turn finished and the orchestrator's bookkeeping was updated. It runs on the
// turn's goroutine.
func WithTurnCompleteCallback(callback func(outcome TurnOutcome)) OrchestratorOption {
	return func(o *Orchestrator) { o.turnCompleteCallback = callback }
}

// WithBaseContext sets the context dispatched turns are derived from. Turns
// keep its values but are never cancelled by it.
func WithBaseContext(ctx context.Context) OrchestratorOption {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.baseContext = ctx
		}
	}
}

type PipelineOption func(*Pipeline)

func WithTranscriber(transcriber Transcriber) PipelineOption {
	return func(p *Pipeline) { p.transcriber = transcriber }
}

// WithResponder sets the responder answering as target.
func WithResponder(target conversations.Speaker, responder Responder) PipelineOption {
	return func(p *Pipeline) {
		if responder == nil {
			delete(p.responders, target)
			return
		}
		p.responders[target] = responder
	}
}

func WithSynthesizer(synthesizer Synthesizer) PipelineOption {
	return func(p *Pipeline) { p.synthesizer = synthesizer }
}

// WithVoice sets the voice target's responses are spoken with.
func WithVoice(target conversations.Speaker, voice texttospeech.VoiceConfig) PipelineOption {
	return func(p *Pipeline) { p.voices[target] = voice }
}
