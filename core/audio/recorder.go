package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultMaxSnippetDuration bounds a single snippet, uploads are limited to
// 25MB which is a lot more than this at 16kHz.
const DefaultMaxSnippetDuration = 2 * time.Minute

var ErrNotRecording = errors.New("not recording")

// SnippetRecorder sits between a capture device and the orchestrator. It
// keeps the latest captured frame for the voice activity monitor and, while a
// snippet is recording, buffers everything captured.
type SnippetRecorder struct {
	encoding    EncodingInfo
	maxDuration time.Duration

	mu        sync.Mutex
	recording bool
	buffer    []byte
	truncated bool
	frame     []float64
}

type RecorderOption func(*SnippetRecorder)

func WithMaxSnippetDuration(duration time.Duration) RecorderOption {
	return func(r *SnippetRecorder) { r.maxDuration = duration }
}

func NewSnippetRecorder(encoding EncodingInfo, opts ...RecorderOption) *SnippetRecorder {
	if encoding.IsZero() {
		encoding = GetDefaultEncodingInfo()
	}
	r := &SnippetRecorder{encoding: encoding, maxDuration: DefaultMaxSnippetDuration}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *SnippetRecorder) EncodingInfo() EncodingInfo { return r.encoding }

// Write consumes captured PCM. It is meant to be passed as the capture
// callback of a device client.
func (r *SnippetRecorder) Write(pcm []byte) {
	samples := r.encoding.Samples(pcm)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.frame = samples
	if !r.recording {
		return
	}

	limit := int(r.maxDuration.Seconds() * float64(r.encoding.BytesPerSecond()))
	if r.maxDuration > 0 && len(r.buffer)+len(pcm) > limit {
		if !r.truncated {
			logger.Warn("snippet reached its maximum duration, dropping further audio", "max_duration", r.maxDuration.String())
		}
		r.truncated = true
		return
	}
	r.buffer = append(r.buffer, pcm...)
}

// Frame returns the samples captured since the last call, or nil if nothing
// new was captured.
func (r *SnippetRecorder) Frame() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	frame := r.frame
	r.frame = nil
	return frame
}

// Begin starts buffering a new snippet, discarding anything buffered before.
func (r *SnippetRecorder) Begin(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recording = true
	r.truncated = false
	r.buffer = nil
	return nil
}

// Finish stops buffering and returns the snippet as a WAV file. A snippet
// without any captured audio is returned as nil.
func (r *SnippetRecorder) Finish() ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil, "", ErrNotRecording
	}
	r.recording = false

	pcm := r.buffer
	r.buffer = nil
	if len(pcm) == 0 {
		return nil, "", nil
	}

	logger.Debug("snippet finished", "duration", r.encoding.Duration(len(pcm)).String(), "bytes", len(pcm))
	return EncodeWAV(pcm, r.encoding), "audio/wav", nil
}
