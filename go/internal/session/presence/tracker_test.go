package presence

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

func TestMissedHeartbeatsFlipInactive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 30*time.Second)
	tr.Add("p1")
	tr.Add("p2")

	clock.Advance(45 * time.Second)
	tr.Heartbeat("p2")

	clock.Advance(30 * time.Second) // p1 silent 75s, p2 silent 30s
	got := tr.Sweep()
	if diff := cmp.Diff([]string{"p1"}, got); diff != "" {
		t.Fatalf("Sweep() mismatch (-want +got):\n%s", diff)
	}
	if tr.IsActive("p1") {
		t.Fatal("p1 should be inactive")
	}
	if !tr.IsActive("p2") {
		t.Fatal("p2 should still be active")
	}
}

func TestHeartbeatJustBeforeSweepPreventsFlip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 30*time.Second)
	tr.Add("p1")

	clock.Advance(59 * time.Second)
	tr.Heartbeat("p1")
	clock.Advance(2 * time.Second)

	if got := tr.Sweep(); len(got) != 0 {
		t.Fatalf("Sweep() = %v, want none", got)
	}
	if !tr.IsActive("p1") {
		t.Fatal("p1 should be active")
	}
}

func TestExactlyTwoIntervalsIsStillActive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 30*time.Second)
	tr.Add("p1")

	clock.Advance(60 * time.Second)
	if got := tr.Sweep(); len(got) != 0 {
		t.Fatalf("Sweep() = %v at exactly 2 intervals", got)
	}
	clock.Advance(time.Millisecond)
	if got := tr.Sweep(); len(got) != 1 {
		t.Fatalf("Sweep() = %v just past 2 intervals", got)
	}
}

func TestHeartbeatReactivates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(clock, 10*time.Second)
	tr.Add("p1")
	clock.Advance(time.Minute)
	tr.Sweep()

	if !tr.Heartbeat("p1") {
		t.Fatal("Heartbeat should report reactivation")
	}
	if tr.Heartbeat("p1") {
		t.Fatal("second Heartbeat should not report a flip")
	}
	if got := tr.Sweep(); len(got) != 0 {
		t.Fatalf("Sweep() = %v after heartbeat", got)
	}
}

func TestUnknownAndRemoved(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClock(), 0)
	if tr.Interval() != DefaultInterval {
		t.Fatalf("Interval() = %s, want default", tr.Interval())
	}
	if tr.Heartbeat("ghost") {
		t.Fatal("unknown heartbeat should be ignored")
	}
	tr.Add("p1")
	tr.Remove("p1")
	if tr.IsActive("p1") {
		t.Fatal("removed participant should not be active")
	}
	if _, ok := tr.LastSeen("p1"); ok {
		t.Fatal("removed participant should have no LastSeen")
	}
}
