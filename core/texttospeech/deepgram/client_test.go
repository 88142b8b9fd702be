package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-duet/core/audio"
	"github.com/koscakluka/ema-duet/core/texttospeech"
)

// fakeSpeakServer answers a Speak/Flush exchange with two audio frames.
func fakeSpeakServer(t *testing.T, received chan<- []string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		types := []string{"model=" + r.URL.Query().Get("model")}
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var parsed struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsed); err != nil {
				t.Errorf("unexpected message %q", msg)
				break
			}
			types = append(types, parsed.Type)

			switch parsed.Type {
			case "Flush":
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 0, 2, 0})
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte{3, 0})
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed","sequence_id":0}`))
			case "Close":
				received <- types
				return
			}
		}
		received <- types
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSynthesizeWrapsAudioInWAV(t *testing.T) {
	received := make(chan []string, 1)
	server := fakeSpeakServer(t, received)
	defer server.Close()

	synthesizer := NewSynthesizer("key", WithURL(wsURL(server)))
	wav, err := synthesizer.Synthesize(context.Background(), "Hello.", texttospeech.VoiceConfig{Voice: "aura-2-orion-en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pcm, encoding, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("expected wav output: %v", err)
	}
	if string(pcm) != string([]byte{1, 0, 2, 0, 3, 0}) {
		t.Fatalf("unexpected pcm %v", pcm)
	}
	if encoding.SampleRate != 24000 {
		t.Fatalf("unexpected sample rate %d", encoding.SampleRate)
	}

	types := <-received
	want := []string{"model=aura-2-orion-en", "Speak", "Flush", "Close"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("expected exchange %v, got %v", want, types)
	}
}

func TestSynthesizeRawPCM(t *testing.T) {
	received := make(chan []string, 1)
	server := fakeSpeakServer(t, received)
	defer server.Close()

	synthesizer := NewSynthesizer("key", WithURL(wsURL(server)))
	pcm, err := synthesizer.Synthesize(context.Background(), "Hello.", texttospeech.VoiceConfig{Format: texttospeech.FormatPCM})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if audio.IsWAV(pcm) || len(pcm) != 6 {
		t.Fatalf("expected raw pcm, got %d bytes", len(pcm))
	}
	if types := <-received; types[0] != "model="+DefaultVoice {
		t.Fatalf("expected default voice, got %v", types)
	}
}

func TestVoiceModelPrefersVoice(t *testing.T) {
	if got := voiceModel(texttospeech.VoiceConfig{Model: "aura-luna-en", Voice: "aura-orion-en"}); got != "aura-orion-en" {
		t.Fatalf("expected voice to win, got %q", got)
	}
	if got := voiceModel(texttospeech.VoiceConfig{Model: "aura-luna-en"}); got != "aura-luna-en" {
		t.Fatalf("expected model fallback, got %q", got)
	}
}

func TestSynthesizeTimesOutOnSilentService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	synthesizer := NewSynthesizer("key", WithURL(wsURL(server)), WithTimeout(100*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := synthesizer.Synthesize(context.WithoutCancel(context.Background()), "Hello.", texttospeech.VoiceConfig{})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("synthesis did not time out")
	}
}
