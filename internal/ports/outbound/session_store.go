package outbound

import (
	"context"

	"github.com/archon-research/lendkit/internal/domain/entity"
)

// Storage keys for the persisted session.
const (
	KeyConnectedChainID = "connected_chain_id"
	KeyConnectedAddress = "connected_address"
	KeyConnected        = "connected"
	KeyCachedWallet     = "cached_wallet"
)

// SessionStore is durable key-value storage for the session that survives
// restarts, plus the id of the wallet connector last used.
type SessionStore interface {
	// Load returns ok=false when nothing was persisted.
	Load(ctx context.Context) (session entity.PersistedSession, ok bool, err error)
	Save(ctx context.Context, session entity.PersistedSession) error
	Clear(ctx context.Context) error

	CachedConnector(ctx context.Context) (string, error)
	SetCachedConnector(ctx context.Context, id string) error
	ClearCachedConnector(ctx context.Context) error

	Close() error
}
