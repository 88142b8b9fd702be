package vad

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultStartThreshold = 0.025
	DefaultStopThreshold  = 0.012
	DefaultMinSpeech      = 300 * time.Millisecond
	DefaultMinSilence     = 600 * time.Millisecond
	DefaultMinGap         = 300 * time.Millisecond
)

var ErrInvalidThresholds = errors.New("stop threshold must be below start threshold")

// Config holds the hysteresis thresholds and debounce windows of a [Monitor].
type Config struct {
	// StartThreshold is the RMS energy that has to be sustained for
	// MinSpeech before speech is considered started.
	StartThreshold float64
	// StopThreshold is the RMS energy under which the input has to stay for
	// MinSilence before speech is considered ended.
	StopThreshold float64

	MinSpeech  time.Duration
	MinSilence time.Duration
	// MinGap is the minimum time between a speech end and the next speech
	// start.
	MinGap time.Duration
}

func DefaultConfig() Config {
	return Config{
		StartThreshold: DefaultStartThreshold,
		StopThreshold:  DefaultStopThreshold,
		MinSpeech:      DefaultMinSpeech,
		MinSilence:     DefaultMinSilence,
		MinGap:         DefaultMinGap,
	}
}

func (c Config) Validate() error {
	if c.StopThreshold >= c.StartThreshold {
		return fmt.Errorf("invalid thresholds (start %g, stop %g): %w", c.StartThreshold, c.StopThreshold, ErrInvalidThresholds)
	}
	if c.MinSpeech < 0 || c.MinSilence < 0 || c.MinGap < 0 {
		return fmt.Errorf("debounce durations must not be negative")
	}
	return nil
}
