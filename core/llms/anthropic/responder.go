// Package anthropic answers as a conversation target through the Anthropic
// Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-sonnet-20241022"
)

type Responder struct {
	apiKey  string
	baseURL string
	model   string
	persona llms.Persona

	maxTokens   int
	temperature float64

	client *http.Client
}

type Option func(*Responder)

func WithModel(model string) Option {
	return func(r *Responder) {
		if model != "" {
			r.model = model
		}
	}
}

// WithPersona overrides the persona. Empty fields fall back to the built-in
// persona of the role being answered.
func WithPersona(persona llms.Persona) Option {
	return func(r *Responder) { r.persona = persona }
}

func WithBaseURL(baseURL string) Option {
	return func(r *Responder) { r.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithMaxTokens(maxTokens int) Option {
	return func(r *Responder) { r.maxTokens = maxTokens }
}

func WithTemperature(temperature float64) Option {
	return func(r *Responder) { r.temperature = temperature }
}

func WithHTTPClient(client *http.Client) Option {
	return func(r *Responder) { r.client = client }
}

func NewResponder(apiKey string, opts ...Option) *Responder {
	r := &Responder{
		apiKey:      apiKey,
		baseURL:     DefaultBaseURL,
		model:       DefaultModel,
		maxTokens:   llms.DefaultMaxTokens,
		temperature: llms.DefaultTemperature,
		client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond asks the model to reply as role to the conversation in history.
func (r *Responder) Respond(ctx context.Context, history []conversations.Entry, role conversations.Speaker) (string, error) {
	ctx, span := tracer.Start(ctx, "anthropic respond", trace.WithAttributes(
		attribute.String("llm.model", r.model),
		attribute.String("llm.role", string(role)),
		attribute.Int("llm.history_length", len(history)),
	))
	defer span.End()

	prompt, err := llms.BuildPrompt(history, role, r.persona.WithDefaults(role))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	body, err := r.send(ctx, span, requestBody{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
		System:      prompt.System,
		Messages: []message{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: prompt.User}},
		}},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	text := body.text()
	if text == "" {
		span.RecordError(llms.ErrEmptyReply)
		span.SetStatus(codes.Error, llms.ErrEmptyReply.Error())
		return "", llms.ErrEmptyReply
	}

	logger.Debug("reply generated", "role", string(role), "model", r.model, "stop_reason", body.StopReason)
	return text, nil
}

func (r *Responder) send(ctx context.Context, span trace.Span, reqBody requestBody) (*responseBody, error) {
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/messages", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", r.apiKey)
	req.Header.Set("Anthropic-Version", apiVersion)

	resp, err := r.client.Do(req)
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

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if body.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.input_tokens", body.Usage.InputTokens),
			attribute.Int("llm.output_tokens", body.Usage.OutputTokens),
		)
	}
	return &body, nil
}
