package llms

import "github.com/koscakluka/ema-duet/core/conversations"

// Persona describes how a target speaks and what it is told about the show.
type Persona struct {
	SystemPrompt string `yaml:"systemPrompt"`
	RoleContext  string `yaml:"roleContext"`
	Instruction  string `yaml:"instruction"`
}

const roleContext = "The host (<human>) is on camera and leads the show. " +
	"The co-host (<co-host>) is the resident analyst. " +
	"The guest (<guest>) defends the claim under review."

var defaultPersonas = map[conversations.Speaker]Persona{
	conversations.SpeakerCoHost: {
		SystemPrompt: "You are the AI co-host of a fact-checking show. Be succinct, insightful and conversational. " +
			"Speak in the first person, as if on camera.",
		RoleContext: roleContext,
		Instruction: "Reply as <co-host> to the most recent <human> message. Reference evidence or earlier points when it helps.",
	},
	conversations.SpeakerGuest: {
		SystemPrompt: "You are a guest expert defending the claim the host is fact-checking. " +
			"Be articulate, bring evidence and keep the tone professional but conversational.",
		RoleContext: roleContext,
		Instruction: "Reply as <guest> to the most recent <human> message. Address points raised by <co-host> when relevant.",
	},
}

// DefaultPersona returns the built-in persona of target.
func DefaultPersona(target conversations.Speaker) Persona {
	return defaultPersonas[target]
}

// WithDefaults fills empty fields from target's built-in persona.
func (p Persona) WithDefaults(target conversations.Speaker) Persona {
	defaults := DefaultPersona(target)
	if p.SystemPrompt == "" {
		p.SystemPrompt = defaults.SystemPrompt
	}
	if p.RoleContext == "" {
		p.RoleContext = defaults.RoleContext
	}
	if p.Instruction == "" {
		p.Instruction = defaults.Instruction
	}
	return p
}
