// Package deepgram transcribes recorded snippets with Deepgram's streaming
// listen API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duet/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultURL   = "wss://api.deepgram.com/v1/listen"
	DefaultModel = "nova-3"

	// DefaultTimeout bounds a whole transcription exchange.
	DefaultTimeout = 60 * time.Second

	// chunkSize is roughly 100ms of 16kHz linear16.
	chunkSize = 3200

	metadataType api.TypeResponse = "Metadata"
)

type Transcriber struct {
	apiKey   string
	url      string
	model    string
	language string
	timeout  time.Duration
	dialer   *websocket.Dialer
}

type Option func(*Transcriber)

func WithModel(model string) Option {
	return func(t *Transcriber) {
		if model != "" {
			t.model = model
		}
	}
}

func WithLanguage(language string) Option {
	return func(t *Transcriber) { t.language = language }
}

// WithURL overrides the listen endpoint.
func WithURL(listenURL string) Option {
	return func(t *Transcriber) { t.url = listenURL }
}

// WithTimeout bounds how long a transcription may take, including waiting
// for the service to answer.
func WithTimeout(timeout time.Duration) Option {
	return func(t *Transcriber) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

func NewTranscriber(apiKey string, opts ...Option) *Transcriber {
	t := &Transcriber{
		apiKey:   apiKey,
		url:      DefaultURL,
		model:    DefaultModel,
		language: "en-US",
		timeout:  DefaultTimeout,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe streams a finished snippet and returns the joined final
// transcript.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, span := tracer.Start(ctx, "deepgram transcribe", trace.WithAttributes(
		attribute.String("stt.model", t.model),
		attribute.String("stt.mime_type", mimeType),
		attribute.Int("stt.audio_bytes", len(data)),
	))
	defer span.End()

	transcript, err := t.transcribe(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return transcript, nil
}

func (t *Transcriber) transcribe(ctx context.Context, data []byte) (string, error) {
	format, err := prepareAudio(data)
	if err != nil {
		return "", fmt.Errorf("invalid audio: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	conn, err := t.connect(ctx, format.query)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	results := make(chan readResult, 1)
	go func() {
		transcript, err := readTranscript(conn)
		results <- readResult{transcript: transcript, err: err}
	}()

	if err := sendAudio(conn, format.audio); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}

	result := <-results
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if result.err != nil {
		return "", result.err
	}
	if result.transcript == "" {
		return "", speechtotext.ErrEmptyTranscript
	}
	return result.transcript, nil
}

func (t *Transcriber) connect(ctx context.Context, query url.Values) (*websocket.Conn, error) {
	listenURL, err := url.Parse(t.url)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	params := listenURL.Query()
	for key, values := range query {
		params[key] = values
	}
	params.Set("model", t.model)
	if t.language != "" {
		params.Set("language", t.language)
	}
	params.Set("smart_format", "true")
	params.Set("punctuate", "true")
	listenURL.RawQuery = params.Encode()

	conn, _, err := t.dialer.DialContext(ctx, listenURL.String(), http.Header{"Authorization": {"Token " + t.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

func sendAudio(conn *websocket.Conn, pcm []byte) error {
	for offset := 0; offset < len(pcm); offset += chunkSize {
		end := min(offset+chunkSize, len(pcm))
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[offset:end]); err != nil {
			return fmt.Errorf("failed to write to deepgram: %w", err)
		}
	}

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

type readResult struct {
	transcript string
	err        error
}

// readTranscript collects final results until the service closes the stream.
func readTranscript(conn *websocket.Conn) (string, error) {
	segments := []string{}
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				break
			}
			if len(segments) > 0 && websocket.IsUnexpectedCloseError(err) {
				logger.Warn("deepgram stream closed unexpectedly", "error", err)
				break
			}
			return "", fmt.Errorf("failed to read deepgram message: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		segment, done, err := parseMessage(msg)
		if err != nil {
			logger.Warn("failed to parse deepgram message", "error", err)
			continue
		}
		if segment != "" {
			segments = append(segments, segment)
		}
		if done {
			break
		}
	}
	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

// parseMessage returns the transcript of a final results message. done is
// set on the metadata message the service sends after the last result.
func parseMessage(msg []byte) (transcript string, done bool, err error) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		return "", false, err
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			return "", false, err
		}
		if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
			return "", false, nil
		}
		return strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript), false, nil

	case metadataType:
		return "", true, nil
	}
	return "", false, nil
}
