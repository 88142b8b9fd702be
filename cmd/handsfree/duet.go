package main

import (
	"context"
	"errors"

	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/audio"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/targets"
	"github.com/koscakluka/ema-duet/core/vad"
)

// device is an audio backend that captures the microphone and plays
// responses.
type device interface {
	StartCapture(ctx context.Context, onAudio func(pcm []byte)) error
	Play(ctx context.Context, data []byte, mimeType string) error
	EncodingInfo() audio.EncodingInfo
	Close()
}

// backend is where turns run: in-process or on a remote server.
type backend struct {
	runner       orchestration.TurnRunner
	availability func(ctx context.Context) (map[conversations.Speaker]bool, error)
	reset        func(ctx context.Context) error
}

// duet glues capture, orchestration, hands-free mode and playback together.
type duet struct {
	backend  backend
	device   device
	recorder *audio.SnippetRecorder

	orchestrator *orchestration.Orchestrator
	handsFree    *orchestration.HandsFree

	playback chan *orchestration.TurnResult
	notify   func(msg any)
}

func newDuet(b backend, dev device, vadConfig vad.Config) (*duet, error) {
	monitor, err := vad.NewMonitor(vadConfig)
	if err != nil {
		return nil, err
	}

	d := &duet{
		backend:  b,
		device:   dev,
		recorder: audio.NewSnippetRecorder(dev.EncodingInfo()),
		playback: make(chan *orchestration.TurnResult, 8),
		notify:   func(any) {},
	}
	d.orchestrator = orchestration.NewOrchestrator(
		orchestration.WithRecorder(d.recorder),
		orchestration.WithTurnRunner(b.runner),
		orchestration.WithVoiceActivityMonitor(monitor),
		orchestration.WithSnippetStateCallback(func(snippet orchestration.SnippetInfo) {
			// Runs under the orchestrator's lock.
			go d.notify(snippetMsg(snippet))
		}),
		orchestration.WithTurnCompleteCallback(d.onTurnComplete),
	)
	d.handsFree = orchestration.NewHandsFree(monitor, targets.NewAlternator(), d.orchestrator)
	return d, nil
}

// Run captures audio and plays responses until ctx is done.
func (d *duet) Run(ctx context.Context) error {
	if err := d.device.StartCapture(ctx, d.recorder.Write); err != nil {
		return err
	}
	go d.handsFree.Run(ctx, orchestration.DefaultPollInterval, d.recorder)

	for {
		select {
		case <-ctx.Done():
			return nil
		case result := <-d.playback:
			if err := d.device.Play(ctx, result.Audio, result.AudioMimeType); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("failed to play response", "target", string(result.Target), "error", err)
			}
		}
	}
}

func (d *duet) onTurnComplete(outcome orchestration.TurnOutcome) {
	d.notify(turnMsg(outcome))
	if outcome.Err != nil || len(outcome.Result.Audio) == 0 {
		return
	}

	select {
	case d.playback <- outcome.Result:
	default:
		logger.Warn("playback queue full, dropping response", "target", string(outcome.Result.Target))
	}
}

// Toggle starts recording for target, or stops it if target is already
// recording.
func (d *duet) Toggle(target conversations.Speaker) error {
	if recording, ok := d.orchestrator.Recording(); ok && recording == target {
		return d.orchestrator.StopRecording()
	}
	return d.orchestrator.StartRecording(target)
}

func (d *duet) Recording() (conversations.Speaker, bool) { return d.orchestrator.Recording() }
func (d *duet) Sending() []conversations.Speaker         { return d.orchestrator.Sending() }
func (d *duet) HandsFreeEnabled() bool                   { return d.handsFree.Enabled() }
func (d *duet) SetHandsFree(enabled bool)                { d.handsFree.SetEnabled(enabled) }
func (d *duet) NextTarget() (conversations.Speaker, bool) {
	return d.handsFree.NextTarget()
}

func (d *duet) SetAvailability(availability map[conversations.Speaker]bool) {
	d.handsFree.SetAvailability(availability)
}

func (d *duet) Availability(ctx context.Context) (map[conversations.Speaker]bool, error) {
	return d.backend.availability(ctx)
}

func (d *duet) Reset(ctx context.Context) error {
	return d.backend.reset(ctx)
}

// Close stops a recording in progress and waits for turns in flight.
func (d *duet) Close() error {
	d.handsFree.SetEnabled(false)
	return d.orchestrator.Close()
}
