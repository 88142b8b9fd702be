package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/targets"
	"github.com/koscakluka/ema-duet/core/vad"
)

// DefaultPollInterval is the cadence at which hands-free mode samples audio
// energy.
const DefaultPollInterval = 20 * time.Millisecond

// WithVoiceActivityMonitor keeps monitor informed about whether a recording
// is active, so it never signals speech start during a recording.
func WithVoiceActivityMonitor(monitor *vad.Monitor) OrchestratorOption {
	return WithRecordingStateCallback(monitor.SetRecordingActive)
}

// HandsFree starts and stops recordings from voice activity, picking the
// responding target by alternation.
type HandsFree struct {
	monitor      *vad.Monitor
	orchestrator *Orchestrator

	mu         sync.Mutex
	alternator *targets.Alternator

	enabled atomic.Bool
}

// NewHandsFree creates a disabled hands-free controller. The orchestrator
// should be created with [WithVoiceActivityMonitor] for the same monitor.
func NewHandsFree(monitor *vad.Monitor, alternator *targets.Alternator, orchestrator *Orchestrator) *HandsFree {
	return &HandsFree{
		monitor:      monitor,
		alternator:   alternator,
		orchestrator: orchestrator,
	}
}

func (h *HandsFree) Enabled() bool { return h.enabled.Load() }

// SetEnabled turns hands-free mode on or off. While disabled, audio is still
// monitored so thresholds and debounce timers stay current, but no recording
// is started or stopped.
func (h *HandsFree) SetEnabled(enabled bool) {
	h.enabled.Store(enabled)
}

// SetAvailability updates which targets can be chosen.
func (h *HandsFree) SetAvailability(availability map[conversations.Speaker]bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.alternator.SetAvailability(availability)
	switch available := h.alternator.Available(); len(available) {
	case 0:
		logger.Warn("hands-free mode has no available targets")
	case 1:
		logger.Warn("hands-free mode degraded to a single target", "target", string(available[0]))
	}
}

// NextTarget returns the target the next utterance will be addressed to.
func (h *HandsFree) NextTarget() (conversations.Speaker, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alternator.Next()
}

// Run polls source every interval until ctx is done.
func (h *HandsFree) Run(ctx context.Context, interval time.Duration, source vad.FrameSource) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	h.monitor.Run(ctx, interval, source, h.HandleEvent)
}

// HandleEvent reacts to a single voice activity event.
func (h *HandsFree) HandleEvent(event vad.Event) {
	if !h.enabled.Load() {
		return
	}

	switch event {
	case vad.EventSpeechStart:
		h.mu.Lock()
		target, ok := h.alternator.ChooseNext()
		h.mu.Unlock()
		if !ok {
			logger.Warn("speech detected but no target is available")
			return
		}

		if err := h.orchestrator.StartRecording(target); err != nil {
			logger.Error("failed to start hands-free recording", "target", string(target), "error", err)
		}

	case vad.EventSpeechEnd:
		if _, recording := h.orchestrator.Recording(); !recording {
			return
		}
		if err := h.orchestrator.StopRecording(); err != nil {
			logger.Warn("hands-free recording was not dispatched", "error", err)
		}
	}
}
