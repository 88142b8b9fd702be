// Package providers builds the turn pipeline from configuration.
package providers

import (
	"net/http"

	"github.com/koscakluka/ema-duet/core"
	"github.com/koscakluka/ema-duet/core/conversations"
	anthropicllm "github.com/koscakluka/ema-duet/core/llms/anthropic"
	openaillm "github.com/koscakluka/ema-duet/core/llms/openai"
	"github.com/koscakluka/ema-duet/core/sessions"
	deepgramstt "github.com/koscakluka/ema-duet/core/speechtotext/deepgram"
	openaistt "github.com/koscakluka/ema-duet/core/speechtotext/openai"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	deepgramtts "github.com/koscakluka/ema-duet/core/texttospeech/deepgram"
	openaitts "github.com/koscakluka/ema-duet/core/texttospeech/openai"
	"github.com/koscakluka/ema-duet/internal/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-duet/internal/providers")

var deepgramVoices = map[conversations.Speaker]string{
	conversations.SpeakerCoHost: deepgramtts.DefaultVoice,
	conversations.SpeakerGuest:  "aura-2-orion-en",
}

// NewPipeline wires the configured providers into a pipeline. Stages whose
// provider is missing credentials are left out, which makes the affected
// targets unavailable instead of failing startup.
func NewPipeline(cfg *config.Config, store *sessions.Store) *orchestration.Pipeline {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.HTTPTimeoutDuration(),
	}

	opts := []orchestration.PipelineOption{}
	if transcriber := newTranscriber(cfg, client); transcriber != nil {
		opts = append(opts, orchestration.WithTranscriber(transcriber))
	}
	if synthesizer := newSynthesizer(cfg, client); synthesizer != nil {
		opts = append(opts, orchestration.WithSynthesizer(synthesizer))
	}

	targets := map[conversations.Speaker]config.TargetConfig{
		conversations.SpeakerCoHost: cfg.CoHost,
		conversations.SpeakerGuest:  cfg.Guest,
	}
	for target, targetCfg := range targets {
		if responder := newResponder(cfg, target, targetCfg, client); responder != nil {
			opts = append(opts, orchestration.WithResponder(target, responder))
		}
		opts = append(opts, orchestration.WithVoice(target, voiceFor(cfg.TTSProvider, target, targetCfg.Voice)))
	}

	pipeline := orchestration.NewPipeline(store, opts...)
	for target, available := range pipeline.Available() {
		if !available {
			logger.Warn("target unavailable", "target", string(target))
		}
	}
	return pipeline
}

func newTranscriber(cfg *config.Config, client *http.Client) orchestration.Transcriber {
	switch cfg.Transcription.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("transcription disabled, OPENAI_API_KEY is not set")
			return nil
		}
		return openaistt.NewTranscriber(cfg.OpenAIAPIKey,
			openaistt.WithModel(cfg.Transcription.Model),
			openaistt.WithHTTPClient(client),
		)
	case config.ProviderDeepgram:
		if cfg.DeepgramAPIKey == "" {
			logger.Warn("transcription disabled, DEEPGRAM_API_KEY is not set")
			return nil
		}
		return deepgramstt.NewTranscriber(cfg.DeepgramAPIKey,
			deepgramstt.WithModel(cfg.Transcription.Model),
			deepgramstt.WithTimeout(cfg.HTTPTimeoutDuration()),
		)
	}
	logger.Error("unknown transcription provider", "provider", cfg.Transcription.Provider)
	return nil
}

func newSynthesizer(cfg *config.Config, client *http.Client) orchestration.Synthesizer {
	switch cfg.TTSProvider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("speech synthesis disabled, OPENAI_API_KEY is not set")
			return nil
		}
		return openaitts.NewSynthesizer(cfg.OpenAIAPIKey, openaitts.WithHTTPClient(client))
	case config.ProviderDeepgram:
		if cfg.DeepgramAPIKey == "" {
			logger.Warn("speech synthesis disabled, DEEPGRAM_API_KEY is not set")
			return nil
		}
		return deepgramtts.NewSynthesizer(cfg.DeepgramAPIKey, deepgramtts.WithTimeout(cfg.HTTPTimeoutDuration()))
	}
	logger.Error("unknown speech synthesis provider", "provider", cfg.TTSProvider)
	return nil
}

func newResponder(cfg *config.Config, target conversations.Speaker, targetCfg config.TargetConfig, client *http.Client) orchestration.Responder {
	switch targetCfg.Provider {
	case config.ProviderAnthropic:
		apiKey := firstNonEmpty(targetCfg.APIKey, cfg.AnthropicAPIKey)
		if apiKey == "" {
			logger.Warn("responder disabled, ANTHROPIC_API_KEY is not set", "target", string(target))
			return nil
		}
		opts := []anthropicllm.Option{
			anthropicllm.WithModel(targetCfg.Model),
			anthropicllm.WithPersona(targetCfg.Persona),
			anthropicllm.WithHTTPClient(client),
		}
		if targetCfg.BaseURL != "" {
			opts = append(opts, anthropicllm.WithBaseURL(targetCfg.BaseURL))
		}
		return anthropicllm.NewResponder(apiKey, opts...)
	case config.ProviderOpenAI:
		apiKey := firstNonEmpty(targetCfg.APIKey, cfg.OpenAIAPIKey)
		if apiKey == "" {
			logger.Warn("responder disabled, OPENAI_API_KEY is not set", "target", string(target))
			return nil
		}
		opts := []openaillm.Option{
			openaillm.WithModel(targetCfg.Model),
			openaillm.WithPersona(targetCfg.Persona),
			openaillm.WithHTTPClient(client),
		}
		if targetCfg.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(targetCfg.BaseURL))
		}
		return openaillm.NewResponder(apiKey, opts...)
	}
	logger.Error("unknown responder provider", "target", string(target), "provider", targetCfg.Provider)
	return nil
}

// voiceFor adapts a target's voice to what the synthesis provider can
// produce.
func voiceFor(provider string, target conversations.Speaker, voice texttospeech.VoiceConfig) texttospeech.VoiceConfig {
	if provider != config.ProviderDeepgram {
		return voice
	}

	if voice.Format != texttospeech.FormatPCM {
		voice.Format = texttospeech.FormatWAV
	}
	switch {
	case deepgramtts.IsKnownVoice(voice.Voice):
	case deepgramtts.IsKnownVoice(voice.Model):
		voice.Voice = voice.Model
	default:
		logger.Info("using default deepgram voice", "target", string(target), "configured", voice.Voice)
		voice.Voice = deepgramVoices[target]
	}
	voice.Model = ""
	return voice
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
