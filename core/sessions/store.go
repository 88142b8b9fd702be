// Package sessions keeps bounded conversational history per session.
package sessions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/koscakluka/ema-duet/core/conversations"
)

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxHistory  = 60
	DefaultMaxSessions = 25

	DefaultSessionID = "default"
)

// Session is a point-in-time copy of a stored session.
type Session struct {
	ID        string
	Entries   []conversations.Entry
	CreatedAt time.Time
	UpdatedAt time.Time
}

type session struct {
	id        string
	entries   []conversations.Entry
	createdAt time.Time
	updatedAt time.Time
	// seq orders sessions by creation when timestamps tie.
	seq uint64
}

func (s *session) snapshot() Session {
	return Session{
		ID:        s.id,
		Entries:   slices.Clone(s.entries),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// Store holds sessions in memory. Sessions expire after a TTL without
// updates, and the least recently updated ones are evicted once the store
// holds more than the configured maximum.
//
// All methods are safe for concurrent use; each call runs as a single
// critical section.
type Store struct {
	ttl         time.Duration
	maxHistory  int
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
	seq      uint64
}

type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMaxHistory(maxHistory int) Option {
	return func(s *Store) {
		if maxHistory > 0 {
			s.maxHistory = maxHistory
		}
	}
}

func WithMaxSessions(maxSessions int) Option {
	return func(s *Store) {
		if maxSessions > 0 {
			s.maxSessions = maxSessions
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		ttl:         DefaultTTL,
		maxHistory:  DefaultMaxHistory,
		maxSessions: DefaultMaxSessions,
		now:         time.Now,
		sessions:    map[string]*session{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeID(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return DefaultSessionID
	}
	return id
}

// EnsureSession evicts stale sessions and returns the session for id,
// creating it if needed. The session's update time is refreshed.
func (s *Store) EnsureSession(id string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureLocked(normalizeID(id)).snapshot()
}

func (s *Store) ensureLocked(id string) *session {
	now := s.now()
	s.evictExpiredLocked(now)

	sess, ok := s.sessions[id]
	if !ok {
		s.seq++
		sess = &session{id: id, createdAt: now, seq: s.seq}
		s.sessions[id] = sess
	}
	sess.updatedAt = now

	s.evictOverflowLocked(id)
	return sess
}

// AppendEntry adds an utterance to the session, creating the session if
// needed. Text is trimmed; non-string values are converted to their string
// form. The oldest entries are dropped once the history exceeds its maximum
// length.
func (s *Store) AppendEntry(id string, speaker conversations.Speaker, text any) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.ensureLocked(normalizeID(id))
	now := s.now()
	sess.entries = append(sess.entries, conversations.Entry{
		Speaker:   speaker,
		Text:      normalizeText(text),
		Timestamp: now,
	})

	if overflow := len(sess.entries) - s.maxHistory; overflow > 0 {
		sess.entries = slices.Clone(sess.entries[overflow:])
		logger.Debug("trimmed session history", "session_id", sess.id, "removed", overflow)
	}
	sess.updatedAt = now

	return sess.snapshot()
}

func normalizeText(text any) string {
	switch t := text.(type) {
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	}
	return fmt.Sprint(text)
}

// GetHistory returns a copy of the session's entries, oldest first, or nil if
// the session does not exist.
func (s *Store) GetHistory(id string) []conversations.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[normalizeID(id)]
	if !ok {
		return nil
	}
	return slices.Clone(sess.entries)
}

// ClearSession removes the session immediately.
func (s *Store) ClearSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, normalizeID(id))
}

// ActiveCount returns the number of stored sessions.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict runs an eviction pass and returns the number of removed sessions.
func (s *Store) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.evictExpiredLocked(s.now()) + s.evictOverflowLocked("")
}

// Run evicts sessions every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

func (s *Store) evictExpiredLocked(now time.Time) int {
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.updatedAt) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		logger.Info("cleaned up stale sessions", "removed", removed)
	}
	return removed
}

// evictOverflowLocked removes the least recently updated sessions until the
// store is within its bound. The session keep is never removed.
func (s *Store) evictOverflowLocked(keep string) int {
	overflow := len(s.sessions) - s.maxSessions
	if overflow <= 0 {
		return 0
	}

	oldest := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.id != keep {
			oldest = append(oldest, sess)
		}
	}
	overflow = min(overflow, len(oldest))
	slices.SortFunc(oldest, func(a, b *session) int {
		if c := a.updatedAt.Compare(b.updatedAt); c != 0 {
			return c
		}
		if a.seq < b.seq {
			return -1
		} else if a.seq > b.seq {
			return 1
		}
		return 0
	})

	for _, sess := range oldest[:overflow] {
		delete(s.sessions, sess.id)
	}
	logger.Info("evicted oldest sessions over limit", "removed", overflow)
	return overflow
}
