package providers

import (
	"testing"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"github.com/koscakluka/ema-duet/internal/config"
)

func TestNewPipelineAvailability(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(cfg *config.Config)
		expected map[conversations.Speaker]bool
	}{
		{
			name:     "no credentials",
			setup:    func(cfg *config.Config) {},
			expected: map[conversations.Speaker]bool{conversations.SpeakerCoHost: false, conversations.SpeakerGuest: false},
		},
		{
			name: "openai only",
			setup: func(cfg *config.Config) {
				cfg.OpenAIAPIKey = "sk-test"
			},
			expected: map[conversations.Speaker]bool{conversations.SpeakerCoHost: false, conversations.SpeakerGuest: true},
		},
		{
			name: "openai and anthropic",
			setup: func(cfg *config.Config) {
				cfg.OpenAIAPIKey = "sk-test"
				cfg.AnthropicAPIKey = "sk-ant-test"
			},
			expected: map[conversations.Speaker]bool{conversations.SpeakerCoHost: true, conversations.SpeakerGuest: true},
		},
		{
			name: "target key for compatible endpoint",
			setup: func(cfg *config.Config) {
				cfg.DeepgramAPIKey = "dg-test"
				cfg.Transcription.Provider = config.ProviderDeepgram
				cfg.TTSProvider = config.ProviderDeepgram
				cfg.Guest.BaseURL = "https://api.groq.com/openai/v1"
				cfg.Guest.APIKey = "gsk-test"
			},
			expected: map[conversations.Speaker]bool{conversations.SpeakerCoHost: false, conversations.SpeakerGuest: true},
		},
		{
			name: "unknown provider",
			setup: func(cfg *config.Config) {
				cfg.OpenAIAPIKey = "sk-test"
				cfg.TTSProvider = "espeak"
			},
			expected: map[conversations.Speaker]bool{conversations.SpeakerCoHost: false, conversations.SpeakerGuest: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.setup(cfg)

			available := NewPipeline(cfg, sessions.New()).Available()
			for target, want := range tt.expected {
				if available[target] != want {
					t.Fatalf("%s: expected available=%v, got %v", target, want, available[target])
				}
			}
		})
	}
}

func TestVoiceForDeepgram(t *testing.T) {
	voice := voiceFor(config.ProviderDeepgram, conversations.SpeakerGuest, texttospeech.VoiceConfig{Model: "gpt-4o-mini-tts", Voice: "alloy", Format: texttospeech.FormatMP3})
	if voice.Voice != "aura-2-orion-en" || voice.Format != texttospeech.FormatWAV || voice.Model != "" {
		t.Fatalf("unexpected voice %+v", voice)
	}

	voice = voiceFor(config.ProviderDeepgram, conversations.SpeakerCoHost, texttospeech.VoiceConfig{Model: "aura-luna-en", Format: texttospeech.FormatPCM})
	if voice.Voice != "aura-luna-en" || voice.Format != texttospeech.FormatPCM {
		t.Fatalf("unexpected voice %+v", voice)
	}

	openaiVoice := texttospeech.VoiceConfig{Model: "gpt-4o-mini-tts", Voice: "verse", Format: texttospeech.FormatMP3}
	if got := voiceFor(config.ProviderOpenAI, conversations.SpeakerCoHost, openaiVoice); got != openaiVoice {
		t.Fatalf("expected openai voice unchanged, got %+v", got)
	}
}
