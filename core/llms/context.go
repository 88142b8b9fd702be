// Package llms turns a session's conversation into the prompt a responder
// answers. The responders themselves live in the sub-packages.
package llms

import (
	"errors"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-duet/core/conversations"
)

var (
	// ErrNoHumanUtterance is returned when the history holds nothing from the
	// human to respond to.
	ErrNoHumanUtterance = errors.New("no human utterance to respond to")
	// ErrEmptyReply is returned by responders when the model produced no text.
	ErrEmptyReply = errors.New("reply came back empty")
)

const (
	DefaultMaxTokens   = 400
	DefaultTemperature = 0.7
)

// Prompt is a rendered request for a responder.
type Prompt struct {
	System string
	User   string
}

// Tag returns the markup tag a speaker's utterances are wrapped in.
func Tag(speaker conversations.Speaker) string {
	switch speaker {
	case conversations.SpeakerHuman:
		return "human"
	case conversations.SpeakerCoHost:
		return "co-host"
	case conversations.SpeakerGuest:
		return "guest"
	}
	return "unknown"
}

func wrap(tag, text string) string {
	return fmt.Sprintf("<%s>%s</%s>", tag, text, tag)
}

// FormatHistory renders history as tagged markup, one utterance per line.
func FormatHistory(history []conversations.Entry) string {
	lines := make([]string, 0, len(history))
	for _, entry := range history {
		lines = append(lines, wrap(Tag(entry.Speaker), entry.Text))
	}
	return strings.Join(lines, "\n")
}

// Latest returns the most recent utterance of speaker.
func Latest(history []conversations.Entry, speaker conversations.Speaker) (conversations.Entry, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Speaker == speaker {
			return history[i], true
		}
	}
	return conversations.Entry{}, false
}

// BuildPrompt renders the prompt role answers for history. The latest human
// utterance and the latest utterance of the other target are repeated in
// their own blocks after the transcript.
func BuildPrompt(history []conversations.Entry, role conversations.Speaker, persona Persona) (Prompt, error) {
	if !role.IsTarget() {
		return Prompt{}, fmt.Errorf("failed to build prompt: %q is not a target", role)
	}

	latestHuman, ok := Latest(history, conversations.SpeakerHuman)
	if !ok {
		return Prompt{}, ErrNoHumanUtterance
	}

	var b strings.Builder
	b.WriteString("<conversation>\n")
	b.WriteString(FormatHistory(history))
	b.WriteString("\n</conversation>\n")
	b.WriteString(wrap("context", persona.RoleContext))
	b.WriteString("\n")
	b.WriteString(wrap("latest-human", latestHuman.Text))
	b.WriteString("\n")
	for _, other := range conversations.Targets {
		if other == role {
			continue
		}
		if latest, ok := Latest(history, other); ok {
			b.WriteString(wrap("latest-"+Tag(other), latest.Text))
			b.WriteString("\n")
		}
	}
	b.WriteString(wrap("instruction", persona.Instruction))

	return Prompt{System: persona.SystemPrompt, User: b.String()}, nil
}
