// Package client runs turns against a remote duet server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/core/speechtotext"
	"github.com/koscakluka/ema-duet/internal/api"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/koscakluka/ema-duet/internal/client"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

// APIError is a non-OK answer of the server.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

type Option func(*Client)

func WithSessionID(sessionID string) Option {
	return func(c *Client) {
		if sessionID != "" {
			c.sessionID = sessionID
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.client.Timeout = timeout }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		sessionID: sessions.DefaultSessionID,
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "duet " + r.Method + " " + r.URL.Path
			})),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SessionID() string { return c.sessionID }

// RunTurn uploads the snippet and returns the server's result. It makes the
// client usable as an orchestrator turn runner.
func (c *Client) RunTurn(ctx context.Context, snippet orchestration.Snippet) (*orchestration.TurnResult, error) {
	ctx, span := tracer.Start(ctx, "remote turn", trace.WithAttributes(
		attribute.String("turn.target", string(snippet.Target)),
		attribute.String("turn.session_id", c.sessionID),
		attribute.Int("turn.audio_bytes", len(snippet.Audio)),
	))
	defer span.End()

	result, err := c.runTurn(ctx, snippet)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

func (c *Client) runTurn(ctx context.Context, snippet orchestration.Snippet) (*orchestration.TurnResult, error) {
	mimeType := speechtotext.BaseMimeType(snippet.MimeType)
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="snippet.%s"`, api.FieldAudio, speechtotext.FileExtension(mimeType)))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("error creating multipart file: %w", err)
	}
	if _, err := part.Write(snippet.Audio); err != nil {
		return nil, fmt.Errorf("error writing multipart file: %w", err)
	}
	if err := form.WriteField(api.FieldSessionID, c.sessionID); err != nil {
		return nil, fmt.Errorf("error writing multipart field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("error closing multipart body: %w", err)
	}

	path := "/api/turns/" + url.PathEscape(string(snippet.Target))
	var response api.TurnResponse
	if err := c.do(ctx, http.MethodPost, path, form.FormDataContentType(), body, &response); err != nil {
		return nil, err
	}

	logger.Debug("remote turn completed", "target", response.Target, "total_ms", response.Timings.TotalMs)
	return &orchestration.TurnResult{
		SessionID:     response.SessionID,
		Target:        conversations.Speaker(response.Target),
		Transcript:    response.Transcript,
		ResponseText:  response.ResponseText,
		Audio:         response.Audio,
		AudioMimeType: response.MimeType,
		Timings: orchestration.StageTimings{
			Transcription: time.Duration(response.Timings.TranscriptionMs) * time.Millisecond,
			Response:      time.Duration(response.Timings.ResponseMs) * time.Millisecond,
			Synthesis:     time.Duration(response.Timings.SynthesisMs) * time.Millisecond,
			Total:         time.Duration(response.Timings.TotalMs) * time.Millisecond,
		},
	}, nil
}

// Health returns which targets the server can currently serve.
func (c *Client) Health(ctx context.Context) (map[conversations.Speaker]bool, error) {
	var response api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &response); err != nil {
		return nil, err
	}

	availability := map[conversations.Speaker]bool{}
	for _, target := range conversations.Targets {
		availability[target] = response.Targets[string(target)]
	}
	return availability, nil
}

// Reset clears the client's session on the server.
func (c *Client) Reset(ctx context.Context) error {
	reqBody, err := json.Marshal(api.ResetRequest{SessionID: c.sessionID})
	if err != nil {
		return fmt.Errorf("error marshalling request body: %w", err)
	}
	var response api.ResetResponse
	return c.do(ctx, http.MethodPost, "/api/session/reset", "application/json", bytes.NewReader(reqBody), &response)
}

// History returns the entries of the client's session.
func (c *Client) History(ctx context.Context) ([]api.HistoryEntry, error) {
	var response api.HistoryResponse
	path := "/api/session/history?" + url.Values{api.FieldSessionID: {c.sessionID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, "", nil, &response); err != nil {
		return nil, err
	}
	return response.Entries, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(api.HeaderSessionID, c.sessionID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
			var parsed api.ErrorResponse
			if json.Unmarshal(errorBody, &parsed) == nil && parsed.Error != "" {
				apiErr.Message = parsed.Error
				apiErr.RequestID = parsed.RequestID
			}
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error unmarshalling response body: %w", err)
	}
	return nil
}
