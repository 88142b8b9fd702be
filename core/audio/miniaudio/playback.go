package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-duet/core/audio"
)

type playbackClient struct {
	device *malgo.Device

	mu sync.Mutex

	queueMu sync.Mutex
	queue   []byte
	// drained is closed once the queue runs dry and replaced on the next
	// SendAudio.
	drained chan struct{}
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * encoding.Channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Playback.Format = format
	config.Playback.Channels = uint32(encoding.Channels)
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10) // ~100ms of audio
	config.Periods = 4

	c.drained = closedChannel()

	var err error
	if c.device, err = malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: c.processAudio(bytesPerFrame),
	}); err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) SendAudio(pcm []byte) error {
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.device.IsStarted() {
		return fmt.Errorf("device not started")
	}
	if len(pcm) == 0 {
		return nil
	}

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if len(c.queue) == 0 {
		c.drained = make(chan struct{})
	}
	c.queue = append(c.queue, pcm...)
	return nil
}

// Drained returns a channel closed once everything queued so far was played.
func (c *playbackClient) Drained() <-chan struct{} {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.drained == nil {
		c.drained = closedChannel()
	}
	return c.drained
}

func (c *playbackClient) ClearBuffer() {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	c.queue = nil
	c.signalDrainedLocked()
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}
	c.device.Uninit()
	c.device = nil

	c.ClearBuffer()
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.queueMu.Lock()
		defer c.queueMu.Unlock()
		if len(c.queue) == 0 {
			return
		}

		n := copy(pOutput[:min(need, len(pOutput))], c.queue)
		c.queue = c.queue[n:]
		if len(c.queue) == 0 {
			c.queue = nil
			c.signalDrainedLocked()
		}
	}
}

func (c *playbackClient) signalDrainedLocked() {
	if c.drained == nil {
		return
	}
	select {
	case <-c.drained:
	default:
		close(c.drained)
	}
}

func closedChannel() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
