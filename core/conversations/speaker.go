package conversations

import "fmt"

// Speaker identifies who produced a conversation entry.
type Speaker string

const (
	SpeakerHuman  Speaker = "human"
	SpeakerCoHost Speaker = "cohost"
	SpeakerGuest  Speaker = "guest"
)

// Targets lists the responders in priority order. The order is used whenever a
// deterministic choice between available targets is needed.
var Targets = []Speaker{SpeakerCoHost, SpeakerGuest}

// IsTarget reports whether the speaker is one of the automated responders.
func (s Speaker) IsTarget() bool {
	return s == SpeakerCoHost || s == SpeakerGuest
}

// Label returns a human readable name for the speaker.
func (s Speaker) Label() string {
	switch s {
	case SpeakerHuman:
		return "Host"
	case SpeakerCoHost:
		return "Co-host"
	case SpeakerGuest:
		return "Guest"
	}
	return string(s)
}

// ParseTarget maps a target name to a [Speaker]. The legacy "claude" alias
// resolves to the co-host.
func ParseTarget(name string) (Speaker, error) {
	switch name {
	case string(SpeakerCoHost), "claude", "co-host":
		return SpeakerCoHost, nil
	case string(SpeakerGuest):
		return SpeakerGuest, nil
	}
	return "", fmt.Errorf("unknown target %q", name)
}
