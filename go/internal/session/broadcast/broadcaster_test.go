package broadcast

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recordingSink) Deliver(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func drain(s *Subscription) []Message {
	var out []Message
	for {
		select {
		case m, ok := <-s.C():
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestTopicNames(t *testing.T) {
	if got, want := SessionTopic("ABC123", KindStatus), Topic("session.ABC123.status"); got != want {
		t.Fatalf("SessionTopic = %q, want %q", got, want)
	}
	team := TeamTopic("ABC123", "team-1", KindPromptAdvance)
	if got, want := team, Topic("session.ABC123.team.team-1.prompt-advance"); got != want {
		t.Fatalf("TeamTopic = %q, want %q", got, want)
	}
	if got := team.Kind(); got != KindPromptAdvance {
		t.Fatalf("Kind() = %q, want %q", got, KindPromptAdvance)
	}
	if got := len(SessionTopics("ABC123")); got != 6 {
		t.Fatalf("len(SessionTopics) = %d, want 6", got)
	}
}

func TestPublishDeliversInOrderPerTopic(t *testing.T) {
	b := New(WithClock(clockwork.NewFakeClock()))
	sub := b.Subscribe(SessionTopic("ABC123", KindContent))
	defer sub.Close()

	for i := 0; i < 5; i++ {
		if err := b.Publish(SessionTopic("ABC123", KindContent), map[string]int{"current_index": i}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	msgs := drain(sub)
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	for i, m := range msgs {
		var p map[string]int
		if err := json.Unmarshal(m.Data, &p); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if p["current_index"] != i {
			t.Errorf("message %d has index %d", i, p["current_index"])
		}
		if m.Kind != KindContent {
			t.Errorf("message %d kind = %q", i, m.Kind)
		}
	}
}

func TestTeamTopicsAreIsolated(t *testing.T) {
	b := New()
	team1 := b.Subscribe(TeamTopics("ABC123", "t1")...)
	team2 := b.Subscribe(TeamTopics("ABC123", "t2")...)
	other := b.Subscribe(SessionTopics("XYZ789")...)
	defer team1.Close()
	defer team2.Close()
	defer other.Close()

	_ = b.Publish(TeamTopic("ABC123", "t1", KindDrawing), map[string]string{"type": "stroke"})

	if got := len(drain(team1)); got != 1 {
		t.Fatalf("team1 got %d messages, want 1", got)
	}
	if got := len(drain(team2)); got != 0 {
		t.Fatalf("team2 got %d messages, want 0", got)
	}
	if got := len(drain(other)); got != 0 {
		t.Fatalf("other session got %d messages, want 0", got)
	}
}

func TestNoBacklogForLateSubscribers(t *testing.T) {
	b := New()
	topic := SessionTopic("ABC123", KindStatus)
	_ = b.Publish(topic, map[string]string{"status": "ACTIVE"})

	late := b.Subscribe(topic)
	defer late.Close()
	if got := len(drain(late)); got != 0 {
		t.Fatalf("late subscriber got %d messages, want 0", got)
	}
}

func TestSlowSubscriberIsEvicted(t *testing.T) {
	b := New(WithBufferSize(2))
	topic := SessionTopic("ABC123", KindLeaderboard)
	slow := b.Subscribe(topic)

	for i := 0; i < 3; i++ {
		_ = b.Publish(topic, i)
	}

	if !slow.Evicted() {
		t.Fatal("expected slow subscriber to be evicted")
	}
	if got := b.SubscriberCount(topic); got != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", got)
	}
	// buffered messages remain readable, then the channel is closed
	if got := len(drain(slow)); got != 2 {
		t.Fatalf("drained %d messages, want 2", got)
	}
	if _, ok := <-slow.C(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestSinkSeesEveryMessage(t *testing.T) {
	sink := &recordingSink{}
	b := New(WithSink(sink))
	_ = b.Publish(SessionTopic("ABC123", KindStatus), "LOBBY")
	_ = b.Publish(TeamTopic("ABC123", "t1", KindRoles), "drawer")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.msgs) != 2 {
		t.Fatalf("sink got %d messages, want 2", len(sink.msgs))
	}
}

func TestRemoveAndClose(t *testing.T) {
	b := New()
	topic := SessionTopic("ABC123", KindStatus)
	s := b.Subscribe(topic)
	s.Remove(topic)
	_ = b.Publish(topic, "ACTIVE")
	if got := len(drain(s)); got != 0 {
		t.Fatalf("got %d messages after Remove", got)
	}

	s.Close()
	s.Close()
	s.Add(topic)
	if got := b.SubscriberCount(topic); got != 0 {
		t.Fatalf("closed subscription re-added itself")
	}
}
