package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/llms"
)

func TestRespondSendsPersonaAndTranscript(t *testing.T) {
	var received requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  The evidence says yes.  "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	responder := NewResponder("key", WithBaseURL(server.URL), WithModel("gpt-test"))
	history := []conversations.Entry{{Speaker: conversations.SpeakerHuman, Text: "Is it true?"}}

	reply, err := responder.Respond(context.Background(), history, conversations.SpeakerGuest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "The evidence says yes." {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}

	if received.Model != "gpt-test" || received.MaxTokens != llms.DefaultMaxTokens || received.Temperature != llms.DefaultTemperature {
		t.Fatalf("unexpected request parameters: %+v", received)
	}
	if len(received.Messages) != 2 || received.Messages[0].Role != messageRoleSystem || received.Messages[1].Role != messageRoleUser {
		t.Fatalf("expected system and user messages, got %+v", received.Messages)
	}
	if received.Messages[0].Content != llms.DefaultPersona(conversations.SpeakerGuest).SystemPrompt {
		t.Fatalf("expected guest persona as system prompt")
	}
	if !strings.Contains(received.Messages[1].Content, "<latest-human>Is it true?</latest-human>") {
		t.Fatalf("expected transcript in user message, got %q", received.Messages[1].Content)
	}
}

func TestRespondWithoutHumanUtteranceSkipsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	responder := NewResponder("key", WithBaseURL(server.URL))
	_, err := responder.Respond(context.Background(), nil, conversations.SpeakerCoHost)

	if !errors.Is(err, llms.ErrNoHumanUtterance) {
		t.Fatalf("expected ErrNoHumanUtterance, got %v", err)
	}
	if called {
		t.Fatalf("expected no request to be sent")
	}
}

func TestRespondEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"   "}}]}`))
	}))
	defer server.Close()

	responder := NewResponder("key", WithBaseURL(server.URL))
	history := []conversations.Entry{{Speaker: conversations.SpeakerHuman, Text: "hello"}}

	if _, err := responder.Respond(context.Background(), history, conversations.SpeakerGuest); !errors.Is(err, llms.ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestRespondNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	responder := NewResponder("key", WithBaseURL(server.URL))
	history := []conversations.Entry{{Speaker: conversations.SpeakerHuman, Text: "hello"}}

	_, err := responder.Respond(context.Background(), history, conversations.SpeakerGuest)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}
