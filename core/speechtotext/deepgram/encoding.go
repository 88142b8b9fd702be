package deepgram

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/koscakluka/ema-duet/core/audio"
)

// streamFormat is what gets sent over the socket together with the query
// parameters describing it.
type streamFormat struct {
	audio []byte
	query url.Values
}

// prepareAudio unwraps WAV snippets into raw linear16 so the stream can be
// described explicitly. Other containers are sent as they are and detected by
// the service.
func prepareAudio(data []byte) (streamFormat, error) {
	if !audio.IsWAV(data) {
		return streamFormat{audio: data, query: url.Values{}}, nil
	}

	pcm, encoding, err := audio.DecodeWAV(data)
	if err != nil {
		return streamFormat{}, err
	}
	switch encoding.SampleRate {
	case 8000, 16000, 24000, 32000, 44100, 48000:
	default:
		return streamFormat{}, fmt.Errorf("unsupported sample rate %d", encoding.SampleRate)
	}

	query := url.Values{}
	query.Set("encoding", audio.EncodingLinear16.Name())
	query.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	query.Set("channels", strconv.Itoa(max(encoding.Channels, 1)))
	return streamFormat{audio: pcm, query: query}, nil
}
