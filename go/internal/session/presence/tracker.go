// Package presence tracks participant liveness from periodic heartbeats.
package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the client heartbeat period
const DefaultInterval = 30 * time.Second

// missedBeats is how many intervals may pass before a participant is inactive
const missedBeats = 2

// Tracker records the last heartbeat per participant. A participant who has not
// been heard from within two intervals is inactive but stays tracked until Remove.
type Tracker struct {
	clock    clockwork.Clock
	interval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	lastSeen time.Time
	active   bool
}

// NewTracker creates a tracker. A non-positive interval falls back to DefaultInterval.
func NewTracker(clock clockwork.Clock, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		clock:    clock,
		interval: interval,
		entries:  make(map[string]*entry),
	}
}

// Interval returns the heartbeat interval
func (t *Tracker) Interval() time.Duration {
	return t.interval
}

// Add starts tracking a participant as active. Re-adding refreshes the heartbeat.
// It reports whether the participant flipped from inactive (or untracked) to active.
func (t *Tracker) Add(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		t.entries[id] = &entry{lastSeen: t.clock.Now(), active: true}
		return true
	}
	e.lastSeen = t.clock.Now()
	flipped := !e.active
	e.active = true
	return flipped
}

// Heartbeat refreshes a tracked participant. Unknown ids are ignored.
// It reports whether the participant flipped back to active.
func (t *Tracker) Heartbeat(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	e.lastSeen = t.clock.Now()
	if e.active {
		return false
	}
	e.active = true
	return true
}

// Remove stops tracking a participant
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// Sweep marks every participant silent for more than two intervals as inactive
// and returns the ids that flipped, sorted.
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	window := missedBeats * t.interval

	var flipped []string
	for id, e := range t.entries {
		if e.active && now.Sub(e.lastSeen) > window {
			e.active = false
			flipped = append(flipped, id)
		}
	}
	sort.Strings(flipped)
	return flipped
}

// IsActive reports whether a participant is currently active
func (t *Tracker) IsActive(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	return ok && e.active
}

// LastSeen returns the last heartbeat time for a participant
func (t *Tracker) LastSeen(id string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}
