package pacer

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Scheduler runs keyed one-shot timers. A key has at most one pending timer.
type Scheduler struct {
	clock clockwork.Clock

	activeTimers   map[string]*pending
	activeTimersMu sync.Mutex

	// lastScheduled guards against scheduling the same key for the same base time twice
	lastScheduled map[string]time.Time
}

type pending struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// NewScheduler creates a scheduler on clock
func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		clock:         clock,
		activeTimers:  make(map[string]*pending),
		lastScheduled: make(map[string]time.Time),
	}
}

// Schedule runs fn once base+d has passed. Scheduling a key again with the same
// base is a no-op and returns false; a different base replaces the pending timer.
// fn runs on its own goroutine and must re-check that its target is still current.
func (s *Scheduler) Schedule(key string, base time.Time, d time.Duration, fn func()) bool {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if last, ok := s.lastScheduled[key]; ok && last.Equal(base) {
		log.Debug().
			Str("timer_key", key).
			Time("base_time", base).
			Msg("skipping duplicate schedule")
		return false
	}
	s.lastScheduled[key] = base

	if existing, ok := s.activeTimers[key]; ok {
		stopAndDrainTimer(existing)
		delete(s.activeTimers, key)
	}

	wait := base.Add(d).Sub(s.clock.Now())
	if wait < 0 {
		wait = 0
	}
	p := &pending{timer: s.clock.NewTimer(wait), stop: make(chan struct{})}
	s.activeTimers[key] = p

	go func() {
		select {
		case <-p.timer.Chan():
			s.activeTimersMu.Lock()
			current := s.activeTimers[key] == p
			if current {
				delete(s.activeTimers, key)
				delete(s.lastScheduled, key)
			}
			s.activeTimersMu.Unlock()
			if current {
				fn()
			}
		case <-p.stop:
		}
	}()

	log.Debug().
		Str("timer_key", key).
		Dur("duration", wait).
		Msg("scheduled one-shot timer")
	return true
}

// Cancel stops the pending timer for key
func (s *Scheduler) Cancel(key string) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	s.cancelLocked(key)
}

// CancelPrefix stops every pending timer whose key starts with prefix
func (s *Scheduler) CancelPrefix(prefix string) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	for key := range s.activeTimers {
		if strings.HasPrefix(key, prefix) {
			s.cancelLocked(key)
		}
	}
}

// CancelAll stops every pending timer
func (s *Scheduler) CancelAll() {
	s.CancelPrefix("")
}

// Pending reports whether key has a timer waiting to fire
func (s *Scheduler) Pending(key string) bool {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	_, ok := s.activeTimers[key]
	return ok
}

func (s *Scheduler) cancelLocked(key string) {
	if p, ok := s.activeTimers[key]; ok {
		stopAndDrainTimer(p)
		delete(s.activeTimers, key)
	}
	delete(s.lastScheduled, key)
}

// stopAndDrainTimer stops the timer and releases its waiting goroutine
func stopAndDrainTimer(p *pending) {
	if !p.timer.Stop() {
		select {
		case <-p.timer.Chan():
		default:
		}
	}
	close(p.stop)
}
