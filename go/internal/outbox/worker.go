package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Config struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
	// PublishTimeout bounds one publish attempt
	PublishTimeout time.Duration
	// DrainTimeout bounds flushing queued events on shutdown
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      1024,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		PublishTimeout: 5 * time.Second,
		DrainTimeout:   10 * time.Second,
	}
}

// Stats counts what the worker has done
type Stats struct {
	Published uint64    `json:"published"`
	Failed    uint64    `json:"failed"`
	Dropped   uint64    `json:"dropped"`
	Pending   int       `json:"pending"`
	LastSent  time.Time `json:"last_sent,omitempty"`
}

// Worker queues lifecycle events in memory and publishes them in order from a
// single goroutine. Enqueue never blocks the caller.
type Worker struct {
	publisher Publisher
	config    Config
	clock     clockwork.Clock
	queue     chan Event

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	mu       sync.Mutex
	lastSent time.Time
}

// NewWorker creates a worker. Call Run to start publishing.
func NewWorker(publisher Publisher, cfg Config, clock clockwork.Clock) *Worker {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = def.DrainTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		queue:     make(chan Event, cfg.QueueSize),
	}
}

// Enqueue records an event for publishing. It drops the event when the queue is full.
func (w *Worker) Enqueue(eventType string, sessionID uuid.UUID, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}
	ev := Event{
		ID:        uuid.New(),
		SessionID: sessionID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: w.clock.Now().UTC(),
	}
	select {
	case w.queue <- ev:
	default:
		w.dropped.Add(1)
		log.Warn().
			Str("event_type", eventType).
			Str("session_id", sessionID.String()).
			Msg("outbox queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled, then drains what is left
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Int("queue_size", w.config.QueueSize).Msg("outbox worker started")
	for {
		select {
		case <-ctx.Done():
			w.drain()
			log.Info().Msg("outbox worker stopped")
			return nil
		case ev := <-w.queue:
			w.process(ctx, ev)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.DrainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-w.queue:
			w.process(ctx, ev)
		default:
			return
		}
	}
}

func (w *Worker) process(ctx context.Context, ev Event) {
	if err := w.publishWithRetry(ctx, ev); err != nil {
		w.failed.Add(1)
		log.Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Str("event_type", ev.EventType).
			Msg("failed to publish event")
		return
	}
	w.published.Add(1)
	w.mu.Lock()
	w.lastSent = w.clock.Now()
	w.mu.Unlock()
}

func (w *Worker) publishWithRetry(ctx context.Context, ev Event) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		pctx, cancel := context.WithTimeout(ctx, w.config.PublishTimeout)
		err := w.publisher.Publish(pctx, ev)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("event_id", ev.ID.String()).
			Int("attempt", attempt+1).
			Msg("failed to publish event, retrying")
	}
	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}

// Stats returns the worker counters
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	last := w.lastSent
	w.mu.Unlock()
	return Stats{
		Published: w.published.Load(),
		Failed:    w.failed.Load(),
		Dropped:   w.dropped.Load(),
		Pending:   len(w.queue),
		LastSent:  last,
	}
}
