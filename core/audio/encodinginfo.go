// Package audio holds the PCM plumbing between capture devices, the voice
// activity monitor and the speech services.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Channels: DefaultChannels, Format: EncodingLinear16}
}

// EncodingInfo describes raw PCM audio.
type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) channels() int {
	if e.Channels <= 0 {
		return 1
	}
	return e.Channels
}

// BytesPerFrame is the size of one sample across all channels.
func (e EncodingInfo) BytesPerFrame() int {
	return e.Format.ByteSize() * e.channels()
}

func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.BytesPerFrame()
}

// Duration returns how long size bytes of audio play for.
func (e EncodingInfo) Duration(size int) time.Duration {
	if e.BytesPerSecond() <= 0 {
		return 0
	}
	return time.Duration(size) * time.Second / time.Duration(e.BytesPerSecond())
}

// Samples converts linear16 PCM to samples in [-1, 1]. Multi-channel audio is
// downmixed by averaging the channels of each frame.
func (e EncodingInfo) Samples(pcm []byte) []float64 {
	if e.Format != EncodingLinear16 {
		return nil
	}

	channels := e.channels()
	frameSize := 2 * channels
	samples := make([]float64, 0, len(pcm)/frameSize)
	for offset := 0; offset+frameSize <= len(pcm); offset += frameSize {
		sum := 0.0
		for ch := range channels {
			value := int16(binary.LittleEndian.Uint16(pcm[offset+2*ch:]))
			sum += float64(value) / math.MaxInt16
		}
		samples = append(samples, sum/float64(channels))
	}
	return samples
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingLinear16:
		return 2
	}
	return -1
}

const EncodingLinear16 encodingFormat = "linear16"
