package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type flakyPublisher struct {
	mu       sync.Mutex
	failures map[string]int // event type -> failures left
	sent     []Event
	attempts int
}

func (p *flakyPublisher) Publish(_ context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.failures[ev.EventType] > 0 {
		p.failures[ev.EventType]--
		return errors.New("nats: timeout")
	}
	p.sent = append(p.sent, ev)
	return nil
}

func (p *flakyPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.sent {
		out = append(out, ev.EventType)
	}
	return out
}

func TestWorkerPublishesInOrderWithRetry(t *testing.T) {
	pub := &flakyPublisher{failures: map[string]int{"SessionStarted": 2}}
	w := NewWorker(pub, Config{MaxRetries: 3, RetryDelay: time.Millisecond}, clockwork.NewRealClock())

	sessionID := uuid.New()
	w.Enqueue("SessionCreated", sessionID, map[string]string{"access_code": "ABCDEF"})
	w.Enqueue("SessionStarted", sessionID, map[string]int{"participant_count": 3})
	w.Enqueue("SessionCompleted", sessionID, map[string]string{"reason": "ended"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.Stats().Published < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, stats = %+v", w.Stats())
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	<-done

	want := []string{"SessionCreated", "SessionStarted", "SessionCompleted"}
	if diff := cmp.Diff(want, pub.types()); diff != "" {
		t.Fatalf("published order (-want +got):\n%s", diff)
	}
	if pub.attempts != 5 {
		t.Fatalf("attempts = %d, want 5", pub.attempts)
	}

	var payload map[string]int
	if err := json.Unmarshal(pub.sent[1].Payload, &payload); err != nil || payload["participant_count"] != 3 {
		t.Fatalf("payload = %s", pub.sent[1].Payload)
	}
	if pub.sent[0].SessionID != sessionID || pub.sent[0].ID == pub.sent[1].ID {
		t.Fatalf("event ids = %v, %v", pub.sent[0].ID, pub.sent[1].ID)
	}
}

func TestWorkerGivesUpAndCountsFailures(t *testing.T) {
	pub := &flakyPublisher{failures: map[string]int{"SessionCreated": 10}}
	w := NewWorker(pub, Config{MaxRetries: 1, RetryDelay: time.Millisecond}, nil)

	w.Enqueue("SessionCreated", uuid.New(), struct{}{})
	w.Enqueue("SessionCompleted", uuid.New(), struct{}{})

	// a cancelled context still drains the queue
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatal(err)
	}

	st := w.Stats()
	if st.Failed != 1 || st.Published != 1 || st.Pending != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := NewWorker(&flakyPublisher{}, Config{QueueSize: 1}, nil)
	w.Enqueue("SessionCreated", uuid.New(), struct{}{})
	w.Enqueue("SessionStarted", uuid.New(), struct{}{})
	w.Enqueue("SessionStarted", uuid.New(), func() {}) // unmarshalable, not queued

	if st := w.Stats(); st.Dropped != 1 || st.Pending != 1 {
		t.Fatalf("stats = %+v", st)
	}
}
