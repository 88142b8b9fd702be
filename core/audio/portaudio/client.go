// Package portaudio captures and plays audio through the default devices
// using PortAudio's blocking stream API.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-duet/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-duet/core/audio/portaudio")

// DefaultBufferSize is 20ms of audio at the default sample rate.
const DefaultBufferSize = audio.DefaultSampleRate / 50

type Client struct {
	bufferSize int
	encoding   audio.EncodingInfo
	stream     *portaudio.Stream

	in  []int16
	out []int16

	// writeMu serializes blocking writes to the output side of the stream.
	writeMu sync.Mutex
}

func NewClient(bufferSize int) (*Client, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		encoding:   audio.GetDefaultEncodingInfo(),
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// StartCapture reads the input stream on a new goroutine until ctx is done,
// delivering every buffer to onAudio.
func (c *Client) StartCapture(ctx context.Context, onAudio func(pcm []byte)) error {
	go func() {
		pcm := make([]byte, 2*c.bufferSize)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.stream.Read(); err != nil {
				logger.Warn("failed to read from portaudio stream", "error", err)
				continue
			}
			for i, sample := range c.in {
				binary.LittleEndian.PutUint16(pcm[2*i:], uint16(sample))
			}
			onAudio(pcm)
		}
	}()
	return nil
}

// Play writes synthesized speech to the output stream, blocking until it was
// handed to the device or ctx is done.
func (c *Client) Play(ctx context.Context, data []byte, mimeType string) error {
	pcm, err := audio.PreparePlayback(data, mimeType, c.encoding)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	chunk := 2 * c.bufferSize
	for offset := 0; offset < len(pcm); offset += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(offset+chunk, len(pcm))
		clear(c.out)
		for i := 0; offset+2*i+1 < end; i++ {
			c.out[i] = int16(binary.LittleEndian.Uint16(pcm[offset+2*i:]))
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}

func (c *Client) Close() {
	_ = c.stream.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}
