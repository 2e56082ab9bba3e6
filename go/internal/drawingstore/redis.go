// Package drawingstore keeps saved team canvases so they survive a process restart.
package drawingstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/livequiz/go/internal/session/teamchallenge"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL bounds how long a canvas outlives its session
const DefaultTTL = 2 * time.Hour

const keyPrefix = "livequiz:drawing:"

// RedisConfig configures the Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisStore saves each team canvas as a JSON value with an expiry
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return NewRedisStoreFromClient(client, cfg.TTL), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// SaveDrawing overwrites the stored canvas for d.TeamID
func (s *RedisStore) SaveDrawing(ctx context.Context, accessCode string, d teamchallenge.Drawing) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, drawingKey(accessCode, d.TeamID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save drawing: %w", err)
	}
	return nil
}

// LoadDrawing returns nil when nothing is stored for the team
func (s *RedisStore) LoadDrawing(ctx context.Context, accessCode, teamID string) (*teamchallenge.Drawing, error) {
	data, err := s.client.Get(ctx, drawingKey(accessCode, teamID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load drawing: %w", err)
	}
	return decode(data)
}

// Ping checks the connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func drawingKey(accessCode, teamID string) string {
	return keyPrefix + accessCode + ":" + teamID
}

func encode(d teamchallenge.Drawing) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode drawing: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*teamchallenge.Drawing, error) {
	var d teamchallenge.Drawing
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode drawing: %w", err)
	}
	return &d, nil
}
