// Package openai transcribes recorded snippets with the OpenAI audio
// transcriptions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/koscakluka/ema-duet/core/speechtotext"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-duet/core/speechtotext/openai"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "whisper-1"
)

type Transcriber struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type Option func(*Transcriber)

func WithModel(model string) Option {
	return func(t *Transcriber) {
		if model != "" {
			t.model = model
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(t *Transcriber) { t.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(client *http.Client) Option {
	return func(t *Transcriber) { t.client = client }
}

func NewTranscriber(apiKey string, opts ...Option) *Transcriber {
	t := &Transcriber{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		model:   DefaultModel,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe uploads audio and returns the recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, span := tracer.Start(ctx, "openai transcribe", trace.WithAttributes(
		attribute.String("stt.model", t.model),
		attribute.String("stt.mime_type", mimeType),
		attribute.Int("stt.audio_bytes", len(audio)),
	))
	defer span.End()

	text, err := t.transcribe(ctx, span, audio, mimeType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (t *Transcriber) transcribe(ctx context.Context, span trace.Span, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="snippet.%s"`, speechtotext.FileExtension(mimeType)))
	header.Set("Content-Type", speechtotext.BaseMimeType(mimeType))
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("error creating multipart file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("error writing multipart file: %w", err)
	}
	if err := form.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("error writing multipart field: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("error closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		return "", fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var transcription struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&transcription); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}

	text := strings.TrimSpace(transcription.Text)
	if text == "" {
		return "", speechtotext.ErrEmptyTranscript
	}
	logger.Debug("snippet transcribed", "model", t.model, "characters", len(text))
	return text, nil
}
