package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-duet/core/texttospeech"
)

func TestSynthesizeSendsVoiceSettings(t *testing.T) {
	var got speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("unexpected authorization %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte("RIFFaudio"))
	}))
	defer server.Close()

	synthesizer := NewSynthesizer("key", WithBaseURL(server.URL+"/"))
	audio, err := synthesizer.Synthesize(context.Background(), "Hi there.", texttospeech.VoiceConfig{Voice: "verse", Format: "MP3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "RIFFaudio" {
		t.Fatalf("unexpected audio %q", audio)
	}

	want := speechRequest{Model: DefaultModel, Voice: "verse", Input: "Hi there.", ResponseFormat: "mp3"}
	if got != want {
		t.Fatalf("expected request %+v, got %+v", want, got)
	}
}

func TestSynthesizeDefaults(t *testing.T) {
	var got speechRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte{1})
	}))
	defer server.Close()

	if _, err := NewSynthesizer("key", WithBaseURL(server.URL)).Synthesize(context.Background(), "Hi", texttospeech.VoiceConfig{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Voice != DefaultVoice || got.ResponseFormat != texttospeech.FormatWAV {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"non-ok status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad voice", http.StatusBadRequest)
		},
		"empty body": func(w http.ResponseWriter, r *http.Request) {},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()

			if _, err := NewSynthesizer("key", WithBaseURL(server.URL)).Synthesize(context.Background(), "Hi", texttospeech.VoiceConfig{}); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
