package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-duet/core/conversations"
)

type SnippetState int

const (
	SnippetRecording SnippetState = iota
	SnippetSending
	SnippetDone
)

func (s SnippetState) String() string {
	switch s {
	case SnippetRecording:
		return "recording"
	case SnippetSending:
		return "sending"
	case SnippetDone:
		return "done"
	}
	return "unknown"
}

// Snippet is a single captured utterance addressed to a target.
type Snippet struct {
	ID       int64
	Target   conversations.Speaker
	Audio    []byte
	MimeType string
}

// SnippetInfo describes a snippet's lifecycle transition.
type SnippetInfo struct {
	ID     int64
	Target conversations.Speaker
	State  SnippetState
}

// TurnOutcome is reported once a dispatched snippet finished processing.
// Exactly one of Result and Err is set.
type TurnOutcome struct {
	Snippet SnippetInfo
	Result  *TurnResult
	Err     error
}

type activeSnippet struct {
	id     int64
	target conversations.Speaker
}

// Orchestrator owns the single capture slot and the bookkeeping of turns in
// flight.
//
// At most one snippet records at any time. A start request for a different
// target while one is recording stops the current recording and is queued;
// the queued start is applied once the stopped turn completes and the slot is
// free. Turns for different targets may be in flight concurrently.
type Orchestrator struct {
	recorder    Recorder
	runner      TurnRunner
	baseContext context.Context

	onRecordingState     []func(recording bool)
	onSnippetState       func(snippet SnippetInfo)
	turnCompleteCallback func(outcome TurnOutcome)

	mu            sync.Mutex
	recording     *activeSnippet
	sending       map[conversations.Speaker]int
	pendingStart  conversations.Speaker
	nextSnippetID int64
	closed        bool

	turns sync.WaitGroup
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		baseContext: context.Background(),
		sending:     map[conversations.Speaker]int{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartRecording starts capturing a snippet for target. It is a no-op if
// target is already recording. If another target is recording, that
// recording is stopped and target starts once its turn completes; a later
// request replaces an earlier queued one.
func (o *Orchestrator) StartRecording(target conversations.Speaker) error {
	if !target.IsTarget() {
		return newValidationError("target", ErrUnknownTarget, fmt.Sprintf("unknown target %q", target))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrOrchestratorClosed
	}

	if o.recording != nil {
		if o.recording.target == target {
			return nil
		}

		o.pendingStart = target
		logger.Debug("queued recording start", "target", string(target), "recording", string(o.recording.target))
		// A failed dispatch reaches the stopped target's TurnOutcome.
		if err := o.stopLocked(); err != nil {
			logger.Warn("stopped recording was not dispatched", "error", err)
		}
		return nil
	}

	o.pendingStart = ""
	return o.startLocked(target)
}

// StopRecording finishes the current recording, if any, and dispatches it as
// an independent turn. The recording indication is always cleared.
//
// A snippet that cannot be dispatched (no audio, recorder failure) is still
// reported as a failed turn, so its target's bookkeeping is finalized the
// same way as for any other turn.
func (o *Orchestrator) StopRecording() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.stopLocked()
}

// Recording returns the target currently recording.
func (o *Orchestrator) Recording() (conversations.Speaker, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.recording == nil {
		return "", false
	}
	return o.recording.target, true
}

// IsSending reports whether a turn for target is awaiting completion.
func (o *Orchestrator) IsSending(target conversations.Speaker) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sending[target] > 0
}

// Sending returns the targets with turns awaiting completion.
func (o *Orchestrator) Sending() []conversations.Speaker {
	o.mu.Lock()
	defer o.mu.Unlock()

	sending := []conversations.Speaker{}
	for _, target := range conversations.Targets {
		if o.sending[target] > 0 {
			sending = append(sending, target)
		}
	}
	return sending
}

// PendingStart returns the queued start request.
func (o *Orchestrator) PendingStart() (conversations.Speaker, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pendingStart, o.pendingStart != ""
}

// AwaitCompletion blocks until every dispatched turn has completed.
func (o *Orchestrator) AwaitCompletion() {
	o.turns.Wait()
}

// Close stops an active recording, drops a queued start and waits for turns
// in flight. No recording can be started afterwards.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.pendingStart = ""
	err := o.stopLocked()
	o.mu.Unlock()

	o.turns.Wait()
	return err
}

func (o *Orchestrator) startLocked(target conversations.Speaker) error {
	if o.recorder != nil {
		if err := o.recorder.Begin(o.baseContext); err != nil {
			return fmt.Errorf("failed to begin recording: %w", err)
		}
	}

	o.nextSnippetID++
	o.recording = &activeSnippet{id: o.nextSnippetID, target: target}
	o.setRecordingState(true)
	o.notifySnippet(SnippetInfo{ID: o.recording.id, Target: target, State: SnippetRecording})
	return nil
}

func (o *Orchestrator) stopLocked() error {
	if o.recording == nil {
		o.setRecordingState(false)
		return nil
	}

	active := o.recording
	o.recording = nil

	var (
		audio    []byte
		mimeType string
		err      error
	)
	if o.recorder != nil {
		audio, mimeType, err = o.recorder.Finish()
	}
	o.setRecordingState(false)

	switch {
	case err != nil:
		err = fmt.Errorf("failed to finish recording: %w", err)
	case len(audio) == 0:
		err = newValidationError("audio", ErrInvalidAudio, "no audio captured")
	case o.runner == nil:
		err = errors.New("no turn runner configured")
	}

	snippet := Snippet{ID: active.id, Target: active.target, Audio: audio, MimeType: mimeType}
	o.sending[active.target]++
	turnsInFlight.Inc()
	o.notifySnippet(SnippetInfo{ID: snippet.ID, Target: snippet.Target, State: SnippetSending})

	o.turns.Add(1)
	go o.runTurn(snippet, err)

	return err
}

// runTurn processes snippet on its own goroutine. A non-nil dispatchErr fails
// the turn without invoking the runner.
func (o *Orchestrator) runTurn(snippet Snippet, dispatchErr error) {
	defer o.turns.Done()

	ctx, span := tracer.Start(context.WithoutCancel(o.baseContext), "process snippet")
	defer span.End()

	outcome := TurnOutcome{Snippet: SnippetInfo{ID: snippet.ID, Target: snippet.Target, State: SnippetDone}}
	defer func() { o.onTurnComplete(outcome) }()

	if dispatchErr != nil {
		outcome.Err = dispatchErr
		span.RecordError(dispatchErr)
		return
	}

	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				outcome.Result = nil
				outcome.Err = fmt.Errorf("turn runner panicked: %v", recovered)
			}
		}()
		outcome.Result, outcome.Err = o.runner.RunTurn(ctx, snippet)
	}()

	if outcome.Err != nil {
		outcome.Result = nil
		span.RecordError(outcome.Err)
		logger.Warn("turn failed", "snippet_id", snippet.ID, "target", string(snippet.Target), "error", outcome.Err)
	} else if outcome.Result == nil {
		outcome.Err = errors.New("turn runner returned no result")
	}
}

// onTurnComplete clears target's sending mark and applies a queued start if
// the capture slot is free.
func (o *Orchestrator) onTurnComplete(outcome TurnOutcome) {
	target := outcome.Snippet.Target

	o.mu.Lock()
	if o.sending[target] <= 1 {
		delete(o.sending, target)
	} else {
		o.sending[target]--
	}
	turnsInFlight.Dec()
	o.notifySnippet(outcome.Snippet)

	var startErr error
	var started conversations.Speaker
	if o.pendingStart != "" && o.recording == nil && !o.closed {
		started = o.pendingStart
		o.pendingStart = ""
		startErr = o.startLocked(started)
	}
	o.mu.Unlock()

	if startErr != nil {
		logger.Error("failed to start queued recording", "target", string(started), "error", startErr)
	}

	if o.turnCompleteCallback != nil {
		o.turnCompleteCallback(outcome)
	}
}

func (o *Orchestrator) setRecordingState(recording bool) {
	for _, callback := range o.onRecordingState {
		callback(recording)
	}
}

func (o *Orchestrator) notifySnippet(info SnippetInfo) {
	if o.onSnippetState != nil {
		o.onSnippetState(info)
	}
}
