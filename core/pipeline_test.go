package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-duet/core/conversations"
	"github.com/koscakluka/ema-duet/core/sessions"
	"github.com/koscakluka/ema-duet/core/texttospeech"
)

type fakeTranscriber struct {
	transcript string
	err        error
	calls      int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	f.calls++
	return f.transcript, f.err
}

type fakeResponder struct {
	reply   string
	err     error
	history []conversations.Entry
	role    conversations.Speaker
}

func (f *fakeResponder) Respond(_ context.Context, history []conversations.Entry, role conversations.Speaker) (string, error) {
	f.history = history
	f.role = role
	return f.reply, f.err
}

type fakeSynthesizer struct {
	audio []byte
	err   error
	calls int
	text  string
	voice texttospeech.VoiceConfig
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text string, voice texttospeech.VoiceConfig) ([]byte, error) {
	f.calls++
	f.text = text
	f.voice = voice
	return f.audio, f.err
}

func newTestPipeline(store *sessions.Store, transcriber *fakeTranscriber, synthesizer *fakeSynthesizer, responders map[conversations.Speaker]*fakeResponder) *Pipeline {
	opts := []PipelineOption{
		WithTranscriber(transcriber),
		WithSynthesizer(synthesizer),
		WithVoice(conversations.SpeakerCoHost, texttospeech.VoiceConfig{Model: "tts", Voice: "verse", Format: texttospeech.FormatWAV}),
		WithVoice(conversations.SpeakerGuest, texttospeech.VoiceConfig{Model: "tts", Voice: "alloy", Format: texttospeech.FormatMP3}),
	}
	for target, responder := range responders {
		opts = append(opts, WithResponder(target, responder))
	}
	return NewPipeline(store, opts...)
}

func TestRunTurnRecordsBothUtterances(t *testing.T) {
	store := sessions.New()
	transcriber := &fakeTranscriber{transcript: "  What do you think?  "}
	synthesizer := &fakeSynthesizer{audio: []byte("speech")}
	guest := &fakeResponder{reply: "I think it's great."}
	pipeline := newTestPipeline(store, transcriber, synthesizer, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerGuest: guest,
	})

	result, err := pipeline.RunTurn(context.Background(), "show", []byte{1, 2}, "audio/webm", conversations.SpeakerGuest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Transcript != "What do you think?" {
		t.Fatalf("expected trimmed transcript, got %q", result.Transcript)
	}
	if result.ResponseText != "I think it's great." || string(result.Audio) != "speech" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.AudioMimeType != "audio/mpeg" {
		t.Fatalf("expected guest voice mime type, got %q", result.AudioMimeType)
	}
	if synthesizer.voice.Voice != "alloy" {
		t.Fatalf("expected guest voice, got %q", synthesizer.voice.Voice)
	}

	if guest.role != conversations.SpeakerGuest {
		t.Fatalf("expected responder to answer as guest, got %q", guest.role)
	}
	if len(guest.history) != 1 || guest.history[0].Speaker != conversations.SpeakerHuman {
		t.Fatalf("expected responder to see the human utterance, got %+v", guest.history)
	}

	history := store.GetHistory("show")
	if len(history) != 2 {
		t.Fatalf("expected two entries, got %d", len(history))
	}
	if history[0].Speaker != conversations.SpeakerHuman || history[1].Speaker != conversations.SpeakerGuest {
		t.Fatalf("unexpected speakers: %+v", history)
	}
}

func TestRunTurnResponseFailureKeepsHumanEntry(t *testing.T) {
	store := sessions.New()
	synthesizer := &fakeSynthesizer{audio: []byte("speech")}
	cohost := &fakeResponder{err: errors.New("upstream unavailable")}
	pipeline := newTestPipeline(store, &fakeTranscriber{transcript: "hello"}, synthesizer, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerCoHost: cohost,
	})

	_, err := pipeline.RunTurn(context.Background(), "s", []byte{1}, "audio/wav", conversations.SpeakerCoHost)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageResponse {
		t.Fatalf("expected response stage error, got %v", err)
	}
	if synthesizer.calls != 0 {
		t.Fatalf("expected synthesis to be skipped after a response failure")
	}

	history := store.GetHistory("s")
	if len(history) != 1 || history[0].Text != "hello" {
		t.Fatalf("expected the human entry to survive, got %+v", history)
	}
}

func TestRunTurnSynthesisFailureKeepsBothEntries(t *testing.T) {
	store := sessions.New()
	synthesizer := &fakeSynthesizer{err: errors.New("tts down")}
	pipeline := newTestPipeline(store, &fakeTranscriber{transcript: "hello"}, synthesizer, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerCoHost: {reply: "hi there"},
	})

	_, err := pipeline.RunTurn(context.Background(), "s", []byte{1}, "audio/wav", conversations.SpeakerCoHost)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageSynthesis {
		t.Fatalf("expected synthesis stage error, got %v", err)
	}
	if got := len(store.GetHistory("s")); got != 2 {
		t.Fatalf("expected both entries to be recorded, got %d", got)
	}
}

func TestRunTurnTranscriptionFailureStopsEarly(t *testing.T) {
	store := sessions.New()
	cohost := &fakeResponder{reply: "unused"}
	pipeline := newTestPipeline(store, &fakeTranscriber{err: errors.New("whisper failed")}, &fakeSynthesizer{}, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerCoHost: cohost,
	})

	_, err := pipeline.RunTurn(context.Background(), "s", []byte{1}, "audio/wav", conversations.SpeakerCoHost)

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageTranscription {
		t.Fatalf("expected transcription stage error, got %v", err)
	}
	if cohost.history != nil {
		t.Fatalf("expected responder not to be called")
	}
	if got := len(store.GetHistory("s")); got != 0 {
		t.Fatalf("expected no entries, got %d", got)
	}
}

func TestRunTurnValidation(t *testing.T) {
	transcriber := &fakeTranscriber{transcript: "hello"}
	pipeline := newTestPipeline(sessions.New(), transcriber, &fakeSynthesizer{}, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerCoHost: {reply: "hi"},
	})

	tests := []struct {
		name   string
		audio  []byte
		target conversations.Speaker
		want   error
	}{
		{name: "empty audio", audio: nil, target: conversations.SpeakerCoHost, want: ErrInvalidAudio},
		{name: "human target", audio: []byte{1}, target: conversations.SpeakerHuman, want: ErrUnknownTarget},
		{name: "unconfigured target", audio: []byte{1}, target: conversations.SpeakerGuest, want: ErrTargetUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.RunTurn(context.Background(), "s", tt.audio, "audio/wav", tt.target)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || !errors.Is(err, tt.want) {
				t.Fatalf("expected validation error wrapping %v, got %v", tt.want, err)
			}
		})
	}

	if transcriber.calls != 0 {
		t.Fatalf("expected no stage to run for rejected turns")
	}
}

func TestAvailableReflectsConfiguredResponders(t *testing.T) {
	pipeline := newTestPipeline(sessions.New(), &fakeTranscriber{}, &fakeSynthesizer{}, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerGuest: {reply: "hi"},
	})

	available := pipeline.Available()
	if available[conversations.SpeakerCoHost] || !available[conversations.SpeakerGuest] {
		t.Fatalf("expected only guest to be available, got %v", available)
	}

	bare := NewPipeline(sessions.New(), WithResponder(conversations.SpeakerGuest, &fakeResponder{}))
	if bare.Available()[conversations.SpeakerGuest] {
		t.Fatalf("expected guest to be unavailable without transcriber and synthesizer")
	}
}

func TestRunnerUsesBoundSession(t *testing.T) {
	store := sessions.New()
	pipeline := newTestPipeline(store, &fakeTranscriber{transcript: "hello"}, &fakeSynthesizer{audio: []byte("a")}, map[conversations.Speaker]*fakeResponder{
		conversations.SpeakerCoHost: {reply: "hi"},
	})

	result, err := pipeline.Runner("bound").RunTurn(context.Background(), Snippet{Target: conversations.SpeakerCoHost, Audio: []byte{1}, MimeType: "audio/wav"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SessionID != "bound" || len(store.GetHistory("bound")) != 2 {
		t.Fatalf("expected turn to be recorded in the bound session, got %+v", result)
	}
}
