package conversations

import "time"

// Entry is a single utterance in a session. Entries are never modified after
// they are appended.
type Entry struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}
