// Package targets decides which responder answers next in hands-free mode.
package targets

import (
	"slices"

	"github.com/koscakluka/ema-duet/core/conversations"
)

// Alternator alternates between the available responders.
//
// It holds no locks; callers that share an Alternator between goroutines
// must serialize access.
type Alternator struct {
	order     []conversations.Speaker
	available map[conversations.Speaker]bool
	next      conversations.Speaker
}

type Option func(*Alternator)

// WithAvailability sets the initial availability flags.
func WithAvailability(availability map[conversations.Speaker]bool) Option {
	return func(a *Alternator) { a.mergeAvailability(availability) }
}

// WithNext sets the initial next target. It is ignored if the target is not
// available.
func WithNext(target conversations.Speaker) Option {
	return func(a *Alternator) { a.next = target }
}

// NewAlternator creates an alternator over [conversations.Targets]. All
// targets start unavailable.
func NewAlternator(opts ...Option) *Alternator {
	a := &Alternator{
		order:     slices.Clone(conversations.Targets),
		available: map[conversations.Speaker]bool{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ensureNext()
	return a
}

// SetAvailability merges availability flags. Targets missing from the map
// keep their previous flag.
func (a *Alternator) SetAvailability(availability map[conversations.Speaker]bool) {
	a.mergeAvailability(availability)
	a.ensureNext()
}

// mergeAvailability records the flags of known targets only.
func (a *Alternator) mergeAvailability(availability map[conversations.Speaker]bool) {
	for target, isAvailable := range availability {
		if !slices.Contains(a.order, target) {
			continue
		}
		a.available[target] = isAvailable
	}
}

// SetNext overrides which target answers next. An unavailable target is
// replaced by the first available one.
func (a *Alternator) SetNext(target conversations.Speaker) {
	a.next = target
	a.ensureNext()
}

// Next returns the target that [Alternator.ChooseNext] would return, without
// advancing.
func (a *Alternator) Next() (conversations.Speaker, bool) {
	return a.next, a.next != ""
}

// Available returns the available targets in priority order.
func (a *Alternator) Available() []conversations.Speaker {
	available := []conversations.Speaker{}
	for _, target := range a.order {
		if a.available[target] {
			available = append(available, target)
		}
	}
	return available
}

// ChooseNext returns the target that should respond next and advances to the
// other available target. With a single available target the same target is
// returned every time; with none, ok is false.
func (a *Alternator) ChooseNext() (target conversations.Speaker, ok bool) {
	available := a.Available()
	if len(available) == 0 {
		a.next = ""
		return "", false
	}

	a.ensureNext()
	chosen := a.next

	if len(available) > 1 {
		for _, candidate := range available {
			if candidate != chosen {
				a.next = candidate
				break
			}
		}
	}

	return chosen, true
}

func (a *Alternator) ensureNext() {
	if a.next != "" && a.available[a.next] {
		return
	}

	a.next = ""
	for _, target := range a.order {
		if a.available[target] {
			a.next = target
			return
		}
	}
}
