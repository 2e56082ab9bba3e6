package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livequiz/go/internal/auth"
	"github.com/mcdev12/livequiz/go/internal/drawingstore"
	"github.com/mcdev12/livequiz/go/internal/outbox"
	"github.com/mcdev12/livequiz/go/internal/session"
	"github.com/mcdev12/livequiz/go/internal/session/broadcast"
	"github.com/mcdev12/livequiz/go/internal/session/gateway"
	"github.com/nats-io/nats.go"
)

// Services is the wired application
type Services struct {
	Clock   clockwork.Clock
	Bus     *broadcast.Broadcaster
	Manager *session.Manager
	Tokens  *auth.Tokens
	Gateway *gateway.ConnectionManager
	Outbox  *outbox.Worker // nil without NATS

	closers []func()
}

// Close releases external connections in reverse order of creation
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Stores → Broadcaster → Manager → Gateway
	svc := &Services{Clock: clockwork.NewRealClock()}

	cat, closeCat, err := setupCatalog(cfg)
	if err != nil {
		return nil, err
	}
	if closeCat != nil {
		svc.closers = append(svc.closers, closeCat)
	}

	var opts []session.Option
	opts = append(opts, session.WithClock(svc.Clock))

	arch, err := setupArchive(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}
	if arch != nil {
		svc.closers = append(svc.closers, func() { arch.Close() })
		opts = append(opts, session.WithArchiver(arch))
	}

	if cfg.redisAddr != "" {
		drawings, err := drawingstore.NewRedisStore(ctx, drawingstore.RedisConfig{
			Addr:     cfg.redisAddr,
			Password: cfg.redisPassword,
			DB:       cfg.redisDB,
		})
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, func() { drawings.Close() })
		opts = append(opts, session.WithDrawingStore(drawings))
	} else {
		opts = append(opts, session.WithDrawingStore(drawingstore.NewMemory()))
	}

	busOpts := []broadcast.Option{broadcast.WithClock(svc.Clock)}
	if cfg.natsURL != "" {
		nc, err := outbox.ConnectNATS(cfg.natsURL, 2*time.Second)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.closers = append(svc.closers, func() { drainNATS(nc) })
		busOpts = append(busOpts, broadcast.WithSink(broadcast.NewNATSRelay(nc, cfg.natsPrefix)))

		pub, err := outbox.NewJetStreamPublisher(ctx, nc, outbox.DefaultJetStreamConfig())
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("failed to set up event stream: %w", err)
		}
		svc.Outbox = outbox.NewWorker(pub, outbox.DefaultConfig(), svc.Clock)
		opts = append(opts, session.WithEventPublisher(svc.Outbox))
	}
	svc.Bus = broadcast.New(busOpts...)

	sessionCfg := session.DefaultConfig()
	sessionCfg.HeartbeatInterval = cfg.heartbeatInterval
	sessionCfg.Retention = cfg.retention
	svc.Manager = session.NewManager(sessionCfg, cat, svc.Bus, opts...)

	svc.Tokens = auth.NewTokens(cfg.jwtSecret, cfg.jwtIssuer, cfg.tokenTTL, svc.Clock)
	svc.Gateway = gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), svc.Manager, svc.Bus, svc.Clock)
	return svc, nil
}

func drainNATS(nc *nats.Conn) {
	if err := nc.Drain(); err != nil {
		nc.Close()
	}
}
