package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sink receives a copy of every published message after local fan-out
type Sink interface {
	Deliver(msg Message)
}

// Broadcaster fans messages out to subscriptions by topic. Topics carry no backlog:
// a subscriber only sees messages published while it is subscribed.
type Broadcaster struct {
	subs map[Topic]map[*Subscription]struct{}
	mu   sync.RWMutex

	sinks      []Sink
	clock      clockwork.Clock
	bufferSize int
}

// Subscription is one subscriber's view onto a set of topics
type Subscription struct {
	ID string

	b      *Broadcaster
	ch     chan Message
	topics map[Topic]struct{}

	// guarded by b.mu
	closed  bool
	evicted bool
}

// Option configures a Broadcaster
type Option func(*Broadcaster)

// WithSink adds a sink that mirrors every message
func WithSink(s Sink) Option {
	return func(b *Broadcaster) { b.sinks = append(b.sinks, s) }
}

// WithClock sets the clock used to timestamp messages
func WithClock(c clockwork.Clock) Option {
	return func(b *Broadcaster) { b.clock = c }
}

// WithBufferSize sets the per-subscription buffer
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) { b.bufferSize = n }
}

// New creates a Broadcaster
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:       make(map[Topic]map[*Subscription]struct{}),
		clock:      clockwork.NewRealClock(),
		bufferSize: 256,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe creates a subscription to the given topics
func (b *Broadcaster) Subscribe(topics ...Topic) *Subscription {
	s := &Subscription{
		ID:     uuid.New().String(),
		b:      b,
		ch:     make(chan Message, b.bufferSize),
		topics: make(map[Topic]struct{}),
	}
	s.Add(topics...)
	return s
}

// Publish marshals payload and delivers it to every subscriber of topic.
// Delivery never blocks; a subscriber whose buffer is full is evicted.
func (b *Broadcaster) Publish(topic Topic, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic.Kind(), err)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Kind:      topic.Kind(),
		Timestamp: b.clock.Now().UTC(),
		Data:      data,
	}

	var lagging []*Subscription
	b.mu.RLock()
	for s := range b.subs[topic] {
		select {
		case s.ch <- msg:
		default:
			lagging = append(lagging, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range lagging {
		log.Warn().
			Str("subscription_id", s.ID).
			Str("topic", string(topic)).
			Msg("subscriber buffer full, evicting")
		s.close(true)
	}

	for _, sink := range b.sinks {
		sink.Deliver(msg)
	}

	return nil
}

// SubscriberCount returns the number of subscriptions on a topic
func (b *Broadcaster) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// C returns the delivery channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Add subscribes to more topics
func (s *Subscription) Add(topics ...Topic) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return
	}
	for _, t := range topics {
		if s.b.subs[t] == nil {
			s.b.subs[t] = make(map[*Subscription]struct{})
		}
		s.b.subs[t][s] = struct{}{}
		s.topics[t] = struct{}{}
	}
}

// Remove unsubscribes from topics
func (s *Subscription) Remove(topics ...Topic) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	for _, t := range topics {
		s.b.detach(s, t)
	}
}

// Close ends the subscription and closes its channel
func (s *Subscription) Close() {
	s.close(false)
}

// Evicted reports whether the subscription was dropped for falling behind
func (s *Subscription) Evicted() bool {
	s.b.mu.RLock()
	defer s.b.mu.RUnlock()
	return s.evicted
}

func (s *Subscription) close(evicted bool) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	if s.closed {
		return
	}
	for t := range s.topics {
		s.b.detach(s, t)
	}
	s.closed = true
	s.evicted = evicted
	close(s.ch)
}

// detach must be called with b.mu held
func (b *Broadcaster) detach(s *Subscription, t Topic) {
	if subs, ok := b.subs[t]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(b.subs, t)
		}
	}
	delete(s.topics, t)
}
