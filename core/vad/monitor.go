package vad

import (
	"context"
	"math"
	"sync/atomic"
	"time"
)

type Event int

const (
	EventNone Event = iota
	EventSpeechStart
	EventSpeechEnd
)

func (e Event) String() string {
	switch e {
	case EventSpeechStart:
		return "speech_start"
	case EventSpeechEnd:
		return "speech_end"
	}
	return "none"
}

type State int

const (
	StateIdle State = iota
	StateSpeaking
)

// FrameSource supplies the most recent frame of normalized amplitude samples
// (-1..1). A nil frame means nothing new has been captured.
type FrameSource interface {
	Frame() []float64
}

// Monitor turns a stream of energy measurements into speech start and end
// events using two thresholds with hysteresis.
//
// Process and Run must be called from a single goroutine. Only the
// recording-active flag may be changed concurrently.
type Monitor struct {
	config Config

	state        State
	speechStart  time.Time
	silenceStart time.Time
	lastStop     time.Time

	recordingActive atomic.Bool
}

func NewMonitor(config Config) (*Monitor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{config: config}, nil
}

func (m *Monitor) Config() Config { return m.config }
func (m *Monitor) State() State   { return m.state }

// SetRecordingActive tells the monitor whether a recording is in progress. No
// speech start is emitted while it is set.
func (m *Monitor) SetRecordingActive(active bool) { m.recordingActive.Store(active) }
func (m *Monitor) RecordingActive() bool          { return m.recordingActive.Load() }

// ProcessFrame computes the RMS energy of samples and advances the state
// machine with it.
func (m *Monitor) ProcessFrame(samples []float64, now time.Time) Event {
	return m.Process(RMS(samples), now)
}

// Process advances the state machine with a single energy measurement taken
// at now.
func (m *Monitor) Process(energy float64, now time.Time) Event {
	switch m.state {
	case StateIdle:
		if energy < m.config.StartThreshold {
			m.speechStart = time.Time{}
			return EventNone
		}

		if m.speechStart.IsZero() {
			m.speechStart = now
		}
		if now.Sub(m.speechStart) < m.config.MinSpeech {
			return EventNone
		}
		if !m.lastStop.IsZero() && now.Sub(m.lastStop) < m.config.MinGap {
			return EventNone
		}
		if m.recordingActive.Load() {
			return EventNone
		}

		m.state = StateSpeaking
		m.speechStart = time.Time{}
		m.silenceStart = time.Time{}
		return EventSpeechStart

	case StateSpeaking:
		if energy >= m.config.StopThreshold {
			m.silenceStart = time.Time{}
			return EventNone
		}

		if m.silenceStart.IsZero() {
			m.silenceStart = now
		}
		if now.Sub(m.silenceStart) < m.config.MinSilence {
			return EventNone
		}

		m.state = StateIdle
		m.silenceStart = time.Time{}
		m.lastStop = now
		return EventSpeechEnd
	}

	return EventNone
}

// Reset returns the monitor to idle and forgets all debounce timers. The
// recording-active flag is left untouched.
func (m *Monitor) Reset() {
	m.state = StateIdle
	m.speechStart = time.Time{}
	m.silenceStart = time.Time{}
	m.lastStop = time.Time{}
}

// Run polls source every interval until ctx is done. Every emitted event is
// passed to onEvent on the polling goroutine, so onEvent must not block.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, source FrameSource, onEvent func(Event)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			frame := source.Frame()
			if frame == nil {
				continue
			}

			event := m.ProcessFrame(frame, now)
			if event == EventNone {
				continue
			}

			logger.Debug("voice activity", "event", event.String(), "recording_active", m.RecordingActive())
			if onEvent != nil {
				onEvent(event)
			}
		}
	}
}

// RMS returns the root mean square of samples, 0 for an empty frame.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, sample := range samples {
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(len(samples)))
}
