package deepgram

import (
	"slices"

	"github.com/koscakluka/ema-duet/core/texttospeech"
)

const DefaultVoice = "aura-2-thalia-en"

var knownVoices = []string{
	"aura-2-thalia-en",
	"aura-2-andromeda-en",
	"aura-2-helena-en",
	"aura-2-apollo-en",
	"aura-2-arcas-en",
	"aura-2-aries-en",
	"aura-2-orion-en",
	"aura-asteria-en",
	"aura-luna-en",
	"aura-orion-en",
}

func GetAvailableVoices() []string {
	return slices.Clone(knownVoices)
}

func IsKnownVoice(voice string) bool {
	return slices.Contains(knownVoices, voice)
}

// voiceModel picks the speak model of voice. Deepgram voices are models, so
// Voice wins over Model when both are set.
func voiceModel(voice texttospeech.VoiceConfig) string {
	switch {
	case voice.Voice != "":
		return voice.Voice
	case voice.Model != "":
		return voice.Model
	}
	return DefaultVoice
}
