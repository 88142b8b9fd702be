package audio

import (
	"fmt"

	"github.com/koscakluka/ema-duet/core/speechtotext"
)

// rawPCMSampleRate is the rate of headerless PCM returned by the speech
// services.
const rawPCMSampleRate = 24000

// PreparePlayback converts synthesized speech into PCM a device configured
// with target can play. WAV and raw 16-bit PCM are supported.
func PreparePlayback(data []byte, mimeType string, target EncodingInfo) ([]byte, error) {
	var (
		pcm    []byte
		source EncodingInfo
	)

	switch {
	case IsWAV(data):
		var err error
		if pcm, source, err = DecodeWAV(data); err != nil {
			return nil, err
		}
	case speechtotext.BaseMimeType(mimeType) == "audio/pcm":
		pcm = data
		source = EncodingInfo{SampleRate: rawPCMSampleRate, Channels: 1, Format: EncodingLinear16}
	default:
		return nil, fmt.Errorf("failed to prepare playback: unsupported audio type %q", mimeType)
	}

	if source.channels() != 1 {
		pcm = downmix(pcm, source.channels())
	}
	return Resample(pcm, source.SampleRate, target.SampleRate), nil
}

func downmix(pcm []byte, channels int) []byte {
	mono := GetDefaultEncodingInfo()
	samples := EncodingInfo{SampleRate: mono.SampleRate, Channels: channels, Format: EncodingLinear16}.Samples(pcm)
	out := make([]byte, 2*len(samples))
	for i, sample := range samples {
		value := int16(sample * 32767)
		out[2*i] = byte(value)
		out[2*i+1] = byte(value >> 8)
	}
	return out
}
