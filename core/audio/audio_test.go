package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func pcm16(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, value := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(value))
	}
	return out
}

func TestSamplesNormalizesLinear16(t *testing.T) {
	samples := GetDefaultEncodingInfo().Samples(pcm16(0, math.MaxInt16, -math.MaxInt16))

	want := []float64{0, 1, -1}
	if len(samples) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(samples))
	}
	for i := range want {
		if math.Abs(samples[i]-want[i]) > 1e-9 {
			t.Fatalf("sample %d: expected %v, got %v", i, want[i], samples[i])
		}
	}
}

func TestSamplesDownmixesStereo(t *testing.T) {
	encoding := EncodingInfo{SampleRate: 16000, Channels: 2, Format: EncodingLinear16}

	samples := encoding.Samples(pcm16(math.MaxInt16, 0))
	if len(samples) != 1 || math.Abs(samples[0]-0.5) > 1e-9 {
		t.Fatalf("expected a single averaged sample, got %v", samples)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := pcm16(1, -2, 3, -4)
	encoding := GetDefaultEncodingInfo()

	wav := EncodeWAV(pcm, encoding)
	if !IsWAV(wav) || len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("unexpected wav encoding of %d bytes", len(wav))
	}

	decoded, info, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Fatalf("expected pcm to survive the round trip")
	}
	if info.SampleRate != encoding.SampleRate || info.Channels != 1 {
		t.Fatalf("unexpected encoding %+v", info)
	}
}

func TestDecodeWAVClampsStreamingDataLength(t *testing.T) {
	wav := EncodeWAV(pcm16(5, 6), GetDefaultEncodingInfo())
	binary.LittleEndian.PutUint32(wav[40:], 0xFFFFFFFF)

	decoded, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 4 {
		t.Fatalf("expected the available 4 bytes, got %d", len(decoded))
	}
}

func TestDecodeWAVRejectsOtherContainers(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("ID3 not a wave")); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}

func TestResampleChangesLength(t *testing.T) {
	pcm := pcm16(0, 100, 200, 300, 400, 500)

	out := Resample(pcm, 24000, 16000)
	if len(out) != 8 {
		t.Fatalf("expected 4 samples after downsampling, got %d bytes", len(out))
	}
	if same := Resample(pcm, 16000, 16000); len(same) != len(pcm) {
		t.Fatalf("expected matching rates to be a no-op")
	}
}

func TestSnippetRecorderBuffersOnlyWhileRecording(t *testing.T) {
	recorder := NewSnippetRecorder(GetDefaultEncodingInfo())

	recorder.Write(pcm16(1, 1))
	if err := recorder.Begin(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recorder.Write(pcm16(2, 2))
	recorder.Write(pcm16(3, 3))

	wav, mimeType, err := recorder.Finish()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mimeType != "audio/wav" {
		t.Fatalf("expected wav mime type, got %q", mimeType)
	}
	pcm, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if string(pcm) != string(pcm16(2, 2, 3, 3)) {
		t.Fatalf("expected only audio written during the recording")
	}

	recorder.Write(pcm16(4, 4))
	if _, _, err := recorder.Finish(); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}

func TestSnippetRecorderEmptySnippet(t *testing.T) {
	recorder := NewSnippetRecorder(GetDefaultEncodingInfo())

	_ = recorder.Begin(context.Background())
	audio, _, err := recorder.Finish()
	if err != nil || audio != nil {
		t.Fatalf("expected no audio and no error, got %d bytes, %v", len(audio), err)
	}
}

func TestSnippetRecorderMaxDuration(t *testing.T) {
	encoding := GetDefaultEncodingInfo()
	recorder := NewSnippetRecorder(encoding, WithMaxSnippetDuration(time.Millisecond))

	_ = recorder.Begin(context.Background())
	chunk := make([]byte, encoding.BytesPerSecond()/1000)
	recorder.Write(chunk)
	recorder.Write(chunk)

	wav, _, _ := recorder.Finish()
	pcm, _, _ := DecodeWAV(wav)
	if len(pcm) != len(chunk) {
		t.Fatalf("expected audio past the limit to be dropped, got %d bytes", len(pcm))
	}
}

func TestSnippetRecorderFrameIsConsumed(t *testing.T) {
	recorder := NewSnippetRecorder(GetDefaultEncodingInfo())

	recorder.Write(pcm16(math.MaxInt16))
	if frame := recorder.Frame(); len(frame) != 1 {
		t.Fatalf("expected the latest frame, got %v", frame)
	}
	if frame := recorder.Frame(); frame != nil {
		t.Fatalf("expected no frame without new audio, got %v", frame)
	}
}

func TestPreparePlaybackResamplesWAV(t *testing.T) {
	source := EncodingInfo{SampleRate: 24000, Channels: 1, Format: EncodingLinear16}
	wav := EncodeWAV(pcm16(0, 100, 200, 300, 400, 500), source)

	pcm, err := PreparePlayback(wav, "audio/wav", GetDefaultEncodingInfo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pcm) != 8 {
		t.Fatalf("expected audio resampled to 16kHz, got %d bytes", len(pcm))
	}
}

func TestPreparePlaybackRejectsCompressedAudio(t *testing.T) {
	if _, err := PreparePlayback([]byte("ID3"), "audio/mpeg", GetDefaultEncodingInfo()); err == nil {
		t.Fatalf("expected compressed audio to be rejected")
	}
}
