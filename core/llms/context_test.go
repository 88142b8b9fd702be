package llms

import (
	"errors"
	"strings"
	"testing"

	"github.com/koscakluka/ema-duet/core/conversations"
)

func entries(pairs ...any) []conversations.Entry {
	history := []conversations.Entry{}
	for i := 0; i+1 < len(pairs); i += 2 {
		history = append(history, conversations.Entry{
			Speaker: pairs[i].(conversations.Speaker),
			Text:    pairs[i+1].(string),
		})
	}
	return history
}

func TestFormatHistoryTagsEverySpeaker(t *testing.T) {
	history := entries(
		conversations.SpeakerHuman, "Is the claim true?",
		conversations.SpeakerCoHost, "Partly.",
		conversations.SpeakerGuest, "Entirely.",
	)

	got := FormatHistory(history)
	want := "<human>Is the claim true?</human>\n<co-host>Partly.</co-host>\n<guest>Entirely.</guest>"
	if got != want {
		t.Fatalf("unexpected markup:\n%s", got)
	}
}

func TestBuildPromptRequiresHumanUtterance(t *testing.T) {
	history := entries(conversations.SpeakerGuest, "I was here first.")

	_, err := BuildPrompt(history, conversations.SpeakerCoHost, DefaultPersona(conversations.SpeakerCoHost))
	if !errors.Is(err, ErrNoHumanUtterance) {
		t.Fatalf("expected ErrNoHumanUtterance, got %v", err)
	}
}

func TestBuildPromptForCoHostQuotesLatestGuest(t *testing.T) {
	history := entries(
		conversations.SpeakerHuman, "first question",
		conversations.SpeakerGuest, "old guest answer",
		conversations.SpeakerGuest, "new guest answer",
		conversations.SpeakerHuman, "second question",
	)
	persona := DefaultPersona(conversations.SpeakerCoHost)

	prompt, err := BuildPrompt(history, conversations.SpeakerCoHost, persona)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if prompt.System != persona.SystemPrompt {
		t.Fatalf("expected persona system prompt, got %q", prompt.System)
	}
	for _, want := range []string{
		"<latest-human>second question</latest-human>",
		"<latest-guest>new guest answer</latest-guest>",
		"<instruction>" + persona.Instruction + "</instruction>",
	} {
		if !strings.Contains(prompt.User, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, prompt.User)
		}
	}
	if strings.Contains(prompt.User, "<latest-co-host>") {
		t.Fatalf("expected no block quoting the co-host itself")
	}
}

func TestBuildPromptForGuestOmitsMissingCoHostBlock(t *testing.T) {
	history := entries(conversations.SpeakerHuman, "question")

	prompt, err := BuildPrompt(history, conversations.SpeakerGuest, DefaultPersona(conversations.SpeakerGuest))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(prompt.User, "<latest-co-host>") {
		t.Fatalf("expected no co-host block without a co-host utterance")
	}
	if !strings.HasPrefix(prompt.User, "<conversation>\n<human>question</human>\n</conversation>") {
		t.Fatalf("unexpected prompt:\n%s", prompt.User)
	}
}

func TestBuildPromptRejectsHumanRole(t *testing.T) {
	history := entries(conversations.SpeakerHuman, "question")

	if _, err := BuildPrompt(history, conversations.SpeakerHuman, Persona{}); err == nil {
		t.Fatalf("expected an error when building a prompt for the human")
	}
}

func TestPersonaWithDefaults(t *testing.T) {
	persona := Persona{SystemPrompt: "custom"}.WithDefaults(conversations.SpeakerGuest)

	if persona.SystemPrompt != "custom" {
		t.Fatalf("expected custom system prompt to be kept")
	}
	if persona.Instruction != DefaultPersona(conversations.SpeakerGuest).Instruction {
		t.Fatalf("expected missing instruction to be filled in")
	}
}
