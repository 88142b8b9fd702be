// Package deepgram speaks responses with Deepgram's streaming speak API.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duet/core/audio"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-duet/core/texttospeech/deepgram"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	DefaultURL = "wss://api.deepgram.com/v1/speak"

	// DefaultTimeout bounds a whole speak exchange.
	DefaultTimeout = 60 * time.Second
)

type Synthesizer struct {
	apiKey   string
	url      string
	encoding audio.EncodingInfo
	timeout  time.Duration
	dialer   *websocket.Dialer
}

type Option func(*Synthesizer)

// WithURL overrides the speak endpoint.
func WithURL(speakURL string) Option {
	return func(s *Synthesizer) { s.url = speakURL }
}

// WithSampleRate sets the rate of the generated linear16 audio.
func WithSampleRate(sampleRate int) Option {
	return func(s *Synthesizer) {
		if sampleRate > 0 {
			s.encoding.SampleRate = sampleRate
		}
	}
}

// WithTimeout bounds how long synthesizing a response may take.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Synthesizer) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func NewSynthesizer(apiKey string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		apiKey:   apiKey,
		url:      DefaultURL,
		encoding: audio.EncodingInfo{SampleRate: 24000, Channels: 1, Format: audio.EncodingLinear16},
		timeout:  DefaultTimeout,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize speaks text and returns the audio as WAV, or as raw linear16
// when the voice asks for pcm.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice texttospeech.VoiceConfig) ([]byte, error) {
	model := voiceModel(voice)
	ctx, span := tracer.Start(ctx, "deepgram synthesize", trace.WithAttributes(
		attribute.String("tts.model", model),
		attribute.Int("tts.characters", len(text)),
	))
	defer span.End()

	pcm, err := s.synthesize(ctx, text, model)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tts.audio_bytes", len(pcm)))

	if voice.Format == texttospeech.FormatPCM {
		return pcm, nil
	}
	return audio.EncodeWAV(pcm, s.encoding), nil
}

func (s *Synthesizer) synthesize(ctx context.Context, text, model string) ([]byte, error) {
	if !IsKnownVoice(model) {
		logger.Warn("unknown deepgram voice, passing it through", "voice", model)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	conn, err := s.connect(ctx, model)
	if err != nil {
		return nil, err
	}
	request := &speakRequest{ws: conn}
	defer request.close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := request.send(speakMsg(text)); err != nil {
		return nil, errors.Join(ctx.Err(), err)
	}
	if err := request.send(flushMsg); err != nil {
		return nil, errors.Join(ctx.Err(), err)
	}

	pcm, err := request.collect()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("deepgram returned no audio")
	}
	return pcm, nil
}

func (s *Synthesizer) connect(ctx context.Context, model string) (*websocket.Conn, error) {
	speakURL, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := speakURL.Query()
	urlValues.Set("encoding", s.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(s.encoding.SampleRate))
	urlValues.Set("model", model)
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := s.dialer.DialContext(ctx, speakURL.String(), http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}
