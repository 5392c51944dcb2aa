// session_store.go provides an in-memory implementation of SessionStore.
//
// The stored values use the same string encoding as the durable stores so
// the three are interchangeable. Data is lost on process restart.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Compile-time check that SessionStore implements outbound.SessionStore
var _ outbound.SessionStore = (*SessionStore)(nil)

// SessionStore is an in-memory implementation of the SessionStore port.
type SessionStore struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{values: make(map[string]string)}
}

func (s *SessionStore) Load(ctx context.Context) (entity.PersistedSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connected, ok := s.values[outbound.KeyConnected]
	if !ok {
		return entity.PersistedSession{}, false, nil
	}
	chainID, _ := strconv.ParseInt(s.values[outbound.KeyConnectedChainID], 10, 64)
	return entity.PersistedSession{
		ChainID:   chainID,
		Address:   s.values[outbound.KeyConnectedAddress],
		Connected: connected == "true",
	}, true, nil
}

func (s *SessionStore) Save(ctx context.Context, session entity.PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[outbound.KeyConnectedChainID] = strconv.FormatInt(session.ChainID, 10)
	s.values[outbound.KeyConnectedAddress] = session.Address
	s.values[outbound.KeyConnected] = strconv.FormatBool(session.Connected)
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, outbound.KeyConnectedChainID)
	delete(s.values, outbound.KeyConnectedAddress)
	delete(s.values, outbound.KeyConnected)
	return nil
}

func (s *SessionStore) CachedConnector(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[outbound.KeyCachedWallet], nil
}

func (s *SessionStore) SetCachedConnector(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[outbound.KeyCachedWallet] = id
	return nil
}

func (s *SessionStore) ClearCachedConnector(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, outbound.KeyCachedWallet)
	return nil
}

// Raw returns the stored value for key, for tests.
func (s *SessionStore) Raw(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *SessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
