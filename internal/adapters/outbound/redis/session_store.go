// Package redis provides a Redis implementation of the SessionStore port.
//
// It lets several CLI hosts share one persisted session. Keys have the form
// prefix:name, and the three session entries are written in one MULTI block.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Compile-time check that SessionStore implements outbound.SessionStore
var _ outbound.SessionStore = (*SessionStore)(nil)

// Config holds Redis store configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long a persisted session lives; zero keeps it forever.
	TTL time.Duration
	// KeyPrefix is prepended to all keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for the Redis store.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		TTL:       30 * 24 * time.Hour,
		KeyPrefix: "lendkit",
	}
}

// SessionStore is a Redis implementation of the outbound.SessionStore port.
type SessionStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewSessionStore creates a new Redis session store.
func NewSessionStore(cfg Config, logger *slog.Logger) (*SessionStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "redis-session-store")

	return &SessionStore{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger,
	}, nil
}

// Ping checks the Redis connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

func (s *SessionStore) key(name string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, name)
}

func (s *SessionStore) Load(ctx context.Context) (entity.PersistedSession, bool, error) {
	vals, err := s.client.MGet(ctx,
		s.key(outbound.KeyConnected),
		s.key(outbound.KeyConnectedChainID),
		s.key(outbound.KeyConnectedAddress),
	).Result()
	if err != nil {
		return entity.PersistedSession{}, false, fmt.Errorf("failed to load session: %w", err)
	}

	connected, ok := vals[0].(string)
	if !ok {
		return entity.PersistedSession{}, false, nil
	}
	rawChain, _ := vals[1].(string)
	address, _ := vals[2].(string)

	chainID, err := strconv.ParseInt(rawChain, 10, 64)
	if err != nil && rawChain != "" {
		s.logger.Warn("ignoring malformed persisted chain id", "value", rawChain)
	}
	return entity.PersistedSession{
		ChainID:   chainID,
		Address:   address,
		Connected: connected == "true",
	}, true, nil
}

func (s *SessionStore) Save(ctx context.Context, session entity.PersistedSession) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(outbound.KeyConnectedChainID), strconv.FormatInt(session.ChainID, 10), s.ttl)
		pipe.Set(ctx, s.key(outbound.KeyConnectedAddress), session.Address, s.ttl)
		pipe.Set(ctx, s.key(outbound.KeyConnected), strconv.FormatBool(session.Connected), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	err := s.client.Del(ctx,
		s.key(outbound.KeyConnectedChainID),
		s.key(outbound.KeyConnectedAddress),
		s.key(outbound.KeyConnected),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *SessionStore) CachedConnector(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.key(outbound.KeyCachedWallet)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get cached connector: %w", err)
	}
	return id, nil
}

func (s *SessionStore) SetCachedConnector(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, s.key(outbound.KeyCachedWallet), id, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache connector: %w", err)
	}
	return nil
}

func (s *SessionStore) ClearCachedConnector(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(outbound.KeyCachedWallet)).Err(); err != nil {
		return fmt.Errorf("failed to clear cached connector: %w", err)
	}
	return nil
}
