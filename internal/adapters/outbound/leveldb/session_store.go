// Package leveldb provides a LevelDB implementation of the SessionStore port.
//
// It is the default durable store of the CLI: one small database directory
// per user holding the persisted session and the cached wallet id.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Compile-time check that SessionStore implements outbound.SessionStore
var _ outbound.SessionStore = (*SessionStore)(nil)

// Config holds LevelDB store configuration.
type Config struct {
	// Path is the database directory.
	Path string
	// KeyPrefix is prepended to every key.
	KeyPrefix string
}

// ConfigDefaults returns the defaults used by the CLI.
func ConfigDefaults() Config {
	return Config{
		Path:      ".lendkit/session",
		KeyPrefix: "session:",
	}
}

// SessionStore persists the session in LevelDB.
type SessionStore struct {
	db     *leveldb.DB
	prefix string
	logger *slog.Logger
}

// NewSessionStore opens (or creates) the database at cfg.Path.
func NewSessionStore(cfg Config, logger *slog.Logger) (*SessionStore, error) {
	trimmed := strings.TrimSpace(cfg.Path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb session store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb session path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb session store: %w", err)
	}
	return newStore(db, cfg.KeyPrefix, logger), nil
}

// NewSessionStoreWithStorage opens the store on an explicit goleveldb
// storage, e.g. storage.NewMemStorage() in tests.
func NewSessionStoreWithStorage(stor storage.Storage, keyPrefix string, logger *slog.Logger) (*SessionStore, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb session store: %w", err)
	}
	return newStore(db, keyPrefix, logger), nil
}

func newStore(db *leveldb.DB, prefix string, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		db:     db,
		prefix: prefix,
		logger: logger.With("component", "leveldb-session-store"),
	}
}

func (s *SessionStore) key(name string) []byte {
	return []byte(s.prefix + name)
}

func (s *SessionStore) get(name string) (string, bool, error) {
	v, err := s.db.Get(s.key(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", name, err)
	}
	return string(v), true, nil
}

func (s *SessionStore) Load(ctx context.Context) (entity.PersistedSession, bool, error) {
	connected, ok, err := s.get(outbound.KeyConnected)
	if err != nil || !ok {
		return entity.PersistedSession{}, false, err
	}
	rawChain, _, err := s.get(outbound.KeyConnectedChainID)
	if err != nil {
		return entity.PersistedSession{}, false, err
	}
	address, _, err := s.get(outbound.KeyConnectedAddress)
	if err != nil {
		return entity.PersistedSession{}, false, err
	}

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
	batch := new(leveldb.Batch)
	batch.Put(s.key(outbound.KeyConnectedChainID), []byte(strconv.FormatInt(session.ChainID, 10)))
	batch.Put(s.key(outbound.KeyConnectedAddress), []byte(session.Address))
	batch.Put(s.key(outbound.KeyConnected), []byte(strconv.FormatBool(session.Connected)))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	batch := new(leveldb.Batch)
	batch.Delete(s.key(outbound.KeyConnectedChainID))
	batch.Delete(s.key(outbound.KeyConnectedAddress))
	batch.Delete(s.key(outbound.KeyConnected))
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SessionStore) CachedConnector(ctx context.Context) (string, error) {
	id, _, err := s.get(outbound.KeyCachedWallet)
	return id, err
}

func (s *SessionStore) SetCachedConnector(ctx context.Context, id string) error {
	if err := s.db.Put(s.key(outbound.KeyCachedWallet), []byte(id), nil); err != nil {
		return fmt.Errorf("cache wallet connector: %w", err)
	}
	return nil
}

func (s *SessionStore) ClearCachedConnector(ctx context.Context) error {
	if err := s.db.Delete(s.key(outbound.KeyCachedWallet), nil); err != nil {
		return fmt.Errorf("clear cached wallet connector: %w", err)
	}
	return nil
}

// Close releases the underlying LevelDB resources.
func (s *SessionStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
