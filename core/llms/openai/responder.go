// Package openai answers as a conversation target through the OpenAI chat
// completions API.
package openai

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
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
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
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond asks the model to reply as role to the conversation in history.
func (r *Responder) Respond(ctx context.Context, history []conversations.Entry, role conversations.Speaker) (string, error) {
	ctx, span := tracer.Start(ctx, "openai respond", trace.WithAttributes(
		attribute.String("llm.model", r.model),
		attribute.String("llm.role", string(role)),
		attribute.Int("llm.history_length", len(history)),
	))
	defer span.End()

	text, err := r.respond(ctx, span, history, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (r *Responder) respond(ctx context.Context, span trace.Span, history []conversations.Entry, role conversations.Speaker) (string, error) {
	prompt, err := llms.BuildPrompt(history, role, r.persona.WithDefaults(role))
	if err != nil {
		return "", err
	}

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:       r.model,
		Messages:    toMessages(prompt),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
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

	var body responseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if body.Usage != nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", body.Usage.PromptTokens),
			attribute.Int("llm.completion_tokens", body.Usage.CompletionTokens),
		)
	}

	if len(body.Choices) == 0 {
		return "", llms.ErrEmptyReply
	}
	text := strings.TrimSpace(body.Choices[0].Message.Content)
	if text == "" {
		return "", llms.ErrEmptyReply
	}

	logger.Debug("reply generated", "role", string(role), "model", r.model, "finish_reason", body.Choices[0].FinishReason)
	return text, nil
}
