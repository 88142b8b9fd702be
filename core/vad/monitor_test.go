package vad

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"
)

func newTestMonitor(t *testing.T, config Config) *Monitor {
	t.Helper()
	m, err := NewMonitor(config)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	return m
}

func testConfig() Config {
	return Config{
		StartThreshold: 0.02,
		StopThreshold:  0.01,
		MinSpeech:      200 * time.Millisecond,
		MinSilence:     300 * time.Millisecond,
		MinGap:         250 * time.Millisecond,
	}
}

type frame struct {
	at     time.Duration
	energy float64
}

func feed(m *Monitor, base time.Time, frames []frame) []Event {
	events := []Event{}
	for _, f := range frames {
		if event := m.Process(f.energy, base.Add(f.at)); event != EventNone {
			events = append(events, event)
		}
	}
	return events
}

func TestSpeechStartAfterSustainedEnergy(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	base := time.Unix(1000, 0)

	startedAt := time.Duration(-1)
	starts := 0
	for i := range 10 {
		at := time.Duration(i) * 25 * time.Millisecond
		if m.Process(0.03, base.Add(at)) == EventSpeechStart {
			starts++
			startedAt = at
		}
	}

	if starts != 1 {
		t.Fatalf("expected exactly one speech start, got %d", starts)
	}
	if startedAt != 200*time.Millisecond {
		t.Fatalf("expected speech start once 200ms were sustained, got %v", startedAt)
	}
	if m.State() != StateSpeaking {
		t.Fatalf("expected monitor to be speaking")
	}
}

func TestPartialSpeechRunsDoNotAccumulate(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	base := time.Unix(1000, 0)

	events := feed(m, base, []frame{
		{0, 0.05},
		{150 * time.Millisecond, 0.05},
		{175 * time.Millisecond, 0.001}, // breaks the run
		{200 * time.Millisecond, 0.05},
		{350 * time.Millisecond, 0.05},
	})
	if len(events) != 0 {
		t.Fatalf("expected no events from interrupted runs, got %v", events)
	}

	events = feed(m, base, []frame{{400 * time.Millisecond, 0.05}})
	if len(events) != 1 || events[0] != EventSpeechStart {
		t.Fatalf("expected speech start once a fresh run reached 200ms, got %v", events)
	}
}

func TestSpeechEndAfterSustainedSilence(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	base := time.Unix(1000, 0)

	events := feed(m, base, []frame{
		{0, 0.05},
		{200 * time.Millisecond, 0.05},
		{300 * time.Millisecond, 0.005},
		{500 * time.Millisecond, 0.015}, // between thresholds resets silence
		{550 * time.Millisecond, 0.005},
		{800 * time.Millisecond, 0.005},
		{850 * time.Millisecond, 0.005},
	})

	want := []Event{EventSpeechStart, EventSpeechEnd}
	if len(events) != len(want) {
		t.Fatalf("expected events %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, events)
		}
	}
	if m.State() != StateIdle {
		t.Fatalf("expected monitor to be idle after speech end")
	}
}

func TestAtMostOneStartBeforeEnd(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	base := time.Unix(1000, 0)

	starts := 0
	for i := range 100 {
		if m.Process(0.5, base.Add(time.Duration(i)*20*time.Millisecond)) == EventSpeechStart {
			starts++
		}
	}
	if starts != 1 {
		t.Fatalf("expected a single start during continuous speech, got %d", starts)
	}
}

func TestNoSpeechStartWithinMinGap(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	base := time.Unix(1000, 0)

	events := feed(m, base, []frame{
		{0, 0.05},
		{200 * time.Millisecond, 0.05},
		{250 * time.Millisecond, 0.0},
		{550 * time.Millisecond, 0.0}, // speech end, lastStop = 550ms
		{560 * time.Millisecond, 0.05},
		{760 * time.Millisecond, 0.05}, // 200ms sustained, only 210ms since stop
	})
	if len(events) != 2 {
		t.Fatalf("expected start and end only, got %v", events)
	}

	events = feed(m, base, []frame{{800 * time.Millisecond, 0.05}})
	if len(events) != 1 || events[0] != EventSpeechStart {
		t.Fatalf("expected speech start once the gap elapsed, got %v", events)
	}
}

func TestNoSpeechStartWhileRecordingActive(t *testing.T) {
	m := newTestMonitor(t, testConfig())
	base := time.Unix(1000, 0)
	m.SetRecordingActive(true)

	events := feed(m, base, []frame{
		{0, 0.05},
		{300 * time.Millisecond, 0.05},
	})
	if len(events) != 0 {
		t.Fatalf("expected no speech start while recording, got %v", events)
	}

	m.SetRecordingActive(false)
	events = feed(m, base, []frame{{325 * time.Millisecond, 0.05}})
	if len(events) != 1 || events[0] != EventSpeechStart {
		t.Fatalf("expected speech start after recording cleared, got %v", events)
	}
}

func TestInvalidThresholdsRejected(t *testing.T) {
	config := testConfig()
	config.StopThreshold = config.StartThreshold

	if _, err := NewMonitor(config); err == nil {
		t.Fatalf("expected stop threshold equal to start threshold to be rejected")
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Fatalf("expected empty frame to have zero energy, got %v", got)
	}

	got := RMS([]float64{0.5, -0.5, 0.5, -0.5})
	if math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected rms 0.5, got %v", got)
	}
}

type staticFrameSource struct {
	mu    sync.Mutex
	frame []float64
}

func (s *staticFrameSource) Frame() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func TestRunEmitsEventsFromPolledFrames(t *testing.T) {
	config := testConfig()
	config.MinSpeech = 0
	m := newTestMonitor(t, config)

	source := &staticFrameSource{frame: []float64{0.4, -0.4}}
	events := make(chan Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 5*time.Millisecond, source, func(event Event) {
		select {
		case events <- event:
		default:
		}
	})

	select {
	case event := <-events:
		if event != EventSpeechStart {
			t.Fatalf("expected speech start, got %v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for polled speech start")
	}
}
