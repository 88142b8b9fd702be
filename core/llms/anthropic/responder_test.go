package anthropic

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

func TestRespondJoinsTextBlocks(t *testing.T) {
	var received requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" || r.Header.Get("Anthropic-Version") != apiVersion {
			t.Errorf("missing authentication headers: %v", r.Header)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "text", "text": "First point."},
				{"type": "tool_use"},
				{"type": "text", "text": "Second point."}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer server.Close()

	responder := NewResponder("secret", WithBaseURL(server.URL+"/"))
	history := []conversations.Entry{
		{Speaker: conversations.SpeakerHuman, Text: "What do we know?"},
		{Speaker: conversations.SpeakerGuest, Text: "Everything."},
	}

	reply, err := responder.Respond(context.Background(), history, conversations.SpeakerCoHost)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "First point.\nSecond point." {
		t.Fatalf("unexpected reply %q", reply)
	}

	if received.Model != DefaultModel || received.MaxTokens != llms.DefaultMaxTokens {
		t.Fatalf("unexpected request parameters: %+v", received)
	}
	if received.System != llms.DefaultPersona(conversations.SpeakerCoHost).SystemPrompt {
		t.Fatalf("expected co-host persona as system prompt, got %q", received.System)
	}
	if len(received.Messages) != 1 || !strings.Contains(received.Messages[0].Content[0].Text, "<latest-guest>Everything.</latest-guest>") {
		t.Fatalf("expected transcript with latest guest block, got %+v", received.Messages)
	}
}

func TestRespondCustomPersona(t *testing.T) {
	var received requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	}))
	defer server.Close()

	responder := NewResponder("secret", WithBaseURL(server.URL), WithPersona(llms.Persona{SystemPrompt: "Be brief."}))
	history := []conversations.Entry{{Speaker: conversations.SpeakerHuman, Text: "hi"}}

	if _, err := responder.Respond(context.Background(), history, conversations.SpeakerCoHost); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.System != "Be brief." {
		t.Fatalf("expected custom system prompt, got %q", received.System)
	}
}

func TestRespondEmptyReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	responder := NewResponder("secret", WithBaseURL(server.URL))
	history := []conversations.Entry{{Speaker: conversations.SpeakerHuman, Text: "hi"}}

	if _, err := responder.Respond(context.Background(), history, conversations.SpeakerCoHost); !errors.Is(err, llms.ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
}

func TestRespondRequiresHumanUtterance(t *testing.T) {
	responder := NewResponder("secret", WithBaseURL("http://127.0.0.1:0"))

	_, err := responder.Respond(context.Background(), []conversations.Entry{{Speaker: conversations.SpeakerGuest, Text: "hi"}}, conversations.SpeakerCoHost)
	if !errors.Is(err, llms.ErrNoHumanUtterance) {
		t.Fatalf("expected ErrNoHumanUtterance, got %v", err)
	}
}
