package speechtotext

import "testing"

func TestBaseMimeType(t *testing.T) {
	if got := BaseMimeType(" Audio/WebM;codecs=opus"); got != "audio/webm" {
		t.Fatalf("unexpected base mime type %q", got)
	}
}

func TestFileExtension(t *testing.T) {
	tests := map[string]string{
		"audio/wav":              "wav",
		"audio/mpeg":             "mp3",
		"audio/x-m4a":            "m4a",
		"audio/ogg;codecs=opus":  "ogg",
		"audio/webm;codecs=opus": "webm",
		"":                       "webm",
	}
	for mimeType, want := range tests {
		if got := FileExtension(mimeType); got != want {
			t.Fatalf("%q: expected %q, got %q", mimeType, want, got)
		}
	}
}
