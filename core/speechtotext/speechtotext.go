// Package speechtotext holds what the transcription clients share.
package speechtotext

import (
	"errors"
	"strings"
)

// ErrEmptyTranscript is returned when the service recognized no speech.
var ErrEmptyTranscript = errors.New("failed to transcribe audio: empty transcript")

// BaseMimeType strips parameters such as codecs from a MIME type.
func BaseMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// FileExtension returns a file extension matching the audio MIME type, used
// when a service infers the format from an upload's file name.
func FileExtension(mimeType string) string {
	switch BaseMimeType(mimeType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	}
	return "webm"
}
