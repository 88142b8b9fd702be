// Package config provides configuration for the duet server and the
// hands-free client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/llms"
	"github.com/koscakluka/ema-duet/core/ratelimit"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/core/texttospeech"
	"github.com/koscakluka/ema-duet/core/vad"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"gopkg.in/yaml.v3"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-duet/internal/config")

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderDeepgram  = "deepgram"

	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"
)

// Config holds the configuration of both binaries.
type Config struct {
	// Server settings
	Port        int `yaml:"port"`
	HTTPTimeout int `yaml:"httpTimeoutSeconds"`

	// Credentials are only read from the environment.
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`

	Transcription TranscriptionConfig `yaml:"transcription"`
	TTSProvider   string              `yaml:"ttsProvider"`
	CoHost        TargetConfig        `yaml:"cohost"`
	Guest         TargetConfig        `yaml:"guest"`

	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	VAD       VADConfig       `yaml:"vad"`
	Client    ClientConfig    `yaml:"client"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type TranscriptionConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

// TargetConfig configures one responder.
type TargetConfig struct {
	Provider string `yaml:"provider"`
	// APIKey overrides the provider's key, for OpenAI compatible endpoints
	// set through BaseURL.
	APIKey  string                   `yaml:"-"`
	Model   string                   `yaml:"model"`
	BaseURL string                   `yaml:"baseUrl"`
	Voice   texttospeech.VoiceConfig `yaml:"voice"`
	Persona llms.Persona             `yaml:"persona"`
}

type SessionConfig struct {
	TTLMinutes  int `yaml:"ttlMinutes"`
	MaxHistory  int `yaml:"maxHistory"`
	MaxSessions int `yaml:"maxSessions"`
}

func (s SessionConfig) TTL() time.Duration { return time.Duration(s.TTLMinutes) * time.Minute }

type RateLimitConfig struct {
	WindowSeconds int `yaml:"windowSeconds"`
	MaxRequests   int `yaml:"maxRequests"`
}

func (r RateLimitConfig) Window() time.Duration { return time.Duration(r.WindowSeconds) * time.Second }

type VADConfig struct {
	StartThreshold float64 `yaml:"startThreshold"`
	StopThreshold  float64 `yaml:"stopThreshold"`
	MinSpeechMs    int     `yaml:"minSpeechMs"`
	MinSilenceMs   int     `yaml:"minSilenceMs"`
	MinGapMs       int     `yaml:"minGapMs"`
}

// Monitor converts the settings to a voice activity monitor configuration.
func (v VADConfig) Monitor() vad.Config {
	return vad.Config{
		StartThreshold: v.StartThreshold,
		StopThreshold:  v.StopThreshold,
		MinSpeech:      time.Duration(v.MinSpeechMs) * time.Millisecond,
		MinSilence:     time.Duration(v.MinSilenceMs) * time.Millisecond,
		MinGap:         time.Duration(v.MinGapMs) * time.Millisecond,
	}
}

// ClientConfig configures the hands-free client.
type ClientConfig struct {
	// ServerURL makes the client run turns on a remote server. Turns run
	// in-process when it is empty.
	ServerURL    string `yaml:"serverUrl"`
	SessionID    string `yaml:"sessionId"`
	AudioBackend string `yaml:"audioBackend"`
}

type TelemetryConfig struct {
	// OTLPEndpoint enables span export over OTLP/HTTP when set.
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	// LogFile receives the logs instead of stdout when set.
	LogFile string `yaml:"logFile"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:        3000,
		HTTPTimeout: 60,
		Transcription: TranscriptionConfig{
			// An empty model keeps the provider's default.
			Provider: ProviderOpenAI,
		},
		TTSProvider: ProviderOpenAI,
		CoHost: TargetConfig{
			Provider: ProviderAnthropic,
			Model:    "claude-3-5-sonnet-20241022",
			Voice:    texttospeech.VoiceConfig{Model: "gpt-4o-mini-tts", Voice: "verse", Format: texttospeech.FormatWAV},
		},
		Guest: TargetConfig{
			Provider: ProviderOpenAI,
			Model:    "gpt-4o-mini",
			Voice:    texttospeech.VoiceConfig{Model: "gpt-4o-mini-tts", Voice: "alloy", Format: texttospeech.FormatWAV},
		},
		Session: SessionConfig{
			TTLMinutes:  int(sessions.DefaultTTL / time.Minute),
			MaxHistory:  sessions.DefaultMaxHistory,
			MaxSessions: sessions.DefaultMaxSessions,
		},
		RateLimit: RateLimitConfig{
			WindowSeconds: int(ratelimit.DefaultWindow / time.Second),
			MaxRequests:   ratelimit.DefaultMaxRequests,
		},
		VAD: VADConfig{
			StartThreshold: vad.DefaultStartThreshold,
			StopThreshold:  vad.DefaultStopThreshold,
			MinSpeechMs:    int(vad.DefaultMinSpeech / time.Millisecond),
			MinSilenceMs:   int(vad.DefaultMinSilence / time.Millisecond),
			MinGapMs:       int(vad.DefaultMinGap / time.Millisecond),
		},
		Client: ClientConfig{
			SessionID:    sessions.DefaultSessionID,
			AudioBackend: AudioBackendMiniaudio,
		},
	}
}

// Load reads the configuration from defaults, an optional .env file, the
// YAML file named by CONFIG_FILE and finally the environment, each
// overriding the previous one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()
	cfg.normalize()

	if err := cfg.VAD.Monitor().Validate(); err != nil {
		return nil, fmt.Errorf("invalid vad configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.Port = getEnvInt("PORT", c.Port)
	c.HTTPTimeout = getEnvInt("HTTP_TIMEOUT_SECONDS", c.HTTPTimeout)

	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	c.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")

	c.Transcription.Provider = getEnv("TRANSCRIBE_PROVIDER", c.Transcription.Provider)
	c.Transcription.Model = getEnv("TRANSCRIBE_MODEL", c.Transcription.Model)
	c.TTSProvider = getEnv("TTS_PROVIDER", c.TTSProvider)

	c.CoHost.Provider = getEnv("COHOST_PROVIDER", c.CoHost.Provider)
	c.CoHost.Model = getEnv("COHOST_MODEL", getEnv("CLAUDE_MODEL", c.CoHost.Model))
	c.CoHost.BaseURL = getEnv("COHOST_BASE_URL", c.CoHost.BaseURL)
	c.CoHost.APIKey = os.Getenv("COHOST_API_KEY")
	c.CoHost.Voice.Model = getEnv("COHOST_VOICE_MODEL", getEnv("CLAUDE_VOICE_MODEL", c.CoHost.Voice.Model))
	c.CoHost.Voice.Voice = getEnv("COHOST_VOICE", getEnv("CLAUDE_VOICE", c.CoHost.Voice.Voice))

	c.Guest.Provider = getEnv("GUEST_PROVIDER", c.Guest.Provider)
	c.Guest.Model = getEnv("GUEST_MODEL", c.Guest.Model)
	c.Guest.BaseURL = getEnv("GUEST_BASE_URL", c.Guest.BaseURL)
	c.Guest.APIKey = os.Getenv("GUEST_API_KEY")
	c.Guest.Voice.Model = getEnv("GUEST_VOICE_MODEL", c.Guest.Voice.Model)
	c.Guest.Voice.Voice = getEnv("GUEST_VOICE", c.Guest.Voice.Voice)

	c.Session.TTLMinutes = getEnvInt("SESSION_TTL_MINUTES", c.Session.TTLMinutes)
	c.Session.MaxHistory = getEnvInt("SESSION_MAX_HISTORY", c.Session.MaxHistory)
	c.Session.MaxSessions = getEnvInt("SESSION_MAX_SESSIONS", c.Session.MaxSessions)

	c.RateLimit.WindowSeconds = getEnvInt("RATE_LIMIT_WINDOW_SECONDS", c.RateLimit.WindowSeconds)
	c.RateLimit.MaxRequests = getEnvInt("RATE_LIMIT_MAX_REQUESTS", c.RateLimit.MaxRequests)

	c.VAD.StartThreshold = getEnvFloat("VAD_START_THRESHOLD", c.VAD.StartThreshold)
	c.VAD.StopThreshold = getEnvFloat("VAD_STOP_THRESHOLD", c.VAD.StopThreshold)
	c.VAD.MinSpeechMs = getEnvInt("VAD_MIN_SPEECH_MS", c.VAD.MinSpeechMs)
	c.VAD.MinSilenceMs = getEnvInt("VAD_MIN_SILENCE_MS", c.VAD.MinSilenceMs)
	c.VAD.MinGapMs = getEnvInt("VAD_MIN_GAP_MS", c.VAD.MinGapMs)

	c.Client.ServerURL = getEnv("SERVER_URL", c.Client.ServerURL)
	c.Client.SessionID = getEnv("SESSION_ID", c.Client.SessionID)
	c.Client.AudioBackend = getEnv("AUDIO_BACKEND", c.Client.AudioBackend)

	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.LogFile = getEnv("LOG_FILE", c.Telemetry.LogFile)
}

// normalize replaces non-positive counts and durations, which can come from
// the YAML file, with their defaults.
func (c *Config) normalize() {
	defaults := Default()
	c.Port = positive(c.Port, defaults.Port)
	c.HTTPTimeout = positive(c.HTTPTimeout, defaults.HTTPTimeout)
	c.Session.TTLMinutes = positive(c.Session.TTLMinutes, defaults.Session.TTLMinutes)
	c.Session.MaxHistory = positive(c.Session.MaxHistory, defaults.Session.MaxHistory)
	c.Session.MaxSessions = positive(c.Session.MaxSessions, defaults.Session.MaxSessions)
	c.RateLimit.WindowSeconds = positive(c.RateLimit.WindowSeconds, defaults.RateLimit.WindowSeconds)
	c.RateLimit.MaxRequests = positive(c.RateLimit.MaxRequests, defaults.RateLimit.MaxRequests)

	c.CoHost.Persona = c.CoHost.Persona.WithDefaults(conversations.SpeakerCoHost)
	c.Guest.Persona = c.Guest.Persona.WithDefaults(conversations.SpeakerGuest)
}

func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt only accepts positive integers, anything else keeps defaultVal.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func positive(value, defaultVal int) int {
	if value > 0 {
		return value
	}
	return defaultVal
}
