// Package texttospeech holds the voice settings shared by the speech
// synthesis clients.
package texttospeech

import "strings"

const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
	FormatPCM = "pcm"
)

// VoiceConfig selects the voice a response is spoken with.
type VoiceConfig struct {
	Model string `yaml:"model"`
	Voice string `yaml:"voice"`
	// Format is the container of the returned audio, defaults to wav.
	Format string `yaml:"format"`
}

func (v VoiceConfig) WithDefaults(defaults VoiceConfig) VoiceConfig {
	if v.Model == "" {
		v.Model = defaults.Model
	}
	if v.Voice == "" {
		v.Voice = defaults.Voice
	}
	if v.Format == "" {
		v.Format = defaults.Format
	}
	return v
}

// MimeType returns the MIME type of audio produced in the configured format.
func (v VoiceConfig) MimeType() string {
	switch strings.ToLower(v.Format) {
	case FormatMP3:
		return "audio/mpeg"
	case FormatPCM:
		return "audio/pcm"
	}
	return "audio/wav"
}
