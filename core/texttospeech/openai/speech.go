// Package openai speaks responses with the OpenAI audio speech API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-duet/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-duet/core/texttospeech/openai"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini-tts"
	DefaultVoice   = "alloy"
)

type Synthesizer struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type Option func(*Synthesizer)

func WithBaseURL(baseURL string) Option {
	return func(s *Synthesizer) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Synthesizer) { s.client = client }
}

func NewSynthesizer(apiKey string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type speechRequest struct {
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	Input          string `json:"input"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize speaks text with voice and returns the encoded audio.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice texttospeech.VoiceConfig) ([]byte, error) {
	voice = voice.WithDefaults(texttospeech.VoiceConfig{
		Model:  DefaultModel,
		Voice:  DefaultVoice,
		Format: texttospeech.FormatWAV,
	})

	ctx, span := tracer.Start(ctx, "openai synthesize", trace.WithAttributes(
		attribute.String("tts.model", voice.Model),
		attribute.String("tts.voice", voice.Voice),
		attribute.String("tts.format", voice.Format),
		attribute.Int("tts.characters", len(text)),
	))
	defer span.End()

	audio, err := s.synthesize(ctx, span, text, voice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("tts.audio_bytes", len(audio)))
	return audio, nil
}

func (s *Synthesizer) synthesize(ctx context.Context, span trace.Span, text string, voice texttospeech.VoiceConfig) ([]byte, error) {
	reqBody, err := json.Marshal(speechRequest{
		Model:          voice.Model,
		Voice:          voice.Voice,
		Input:          text,
		ResponseFormat: strings.ToLower(voice.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/audio/speech", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech response was empty")
	}
	logger.Debug("response synthesized", "voice", voice.Voice, "bytes", len(audio))
	return audio, nil
}
