package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/domain/entity"
)

// EventKind classifies wallet-originated events.
type EventKind int

const (
	EventAccountsChanged EventKind = iota
	EventChainChanged
	EventNetworkChanged
)

func (k EventKind) String() string {
	switch k {
	case EventAccountsChanged:
		return "accountsChanged"
	case EventChainChanged:
		return "chainChanged"
	case EventNetworkChanged:
		return "network"
	default:
		return "unknown"
	}
}

// WalletEvent is a raw event from the wallet. Chain payloads are passed
// through untouched (a number or a hex string, depending on the wallet) and
// normalised by the consumer.
type WalletEvent struct {
	Kind     EventKind
	Accounts []common.Address
	// Chain is the new chain id for chainChanged and network events.
	Chain any
	// Prev is the previous network for network events; nil on the first one.
	Prev any
}

// TransactionRequest is an unsigned transaction handed to the wallet.
type TransactionRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Wallet is the request interface of a connected wallet (EIP-1193 style).
type Wallet interface {
	ChainID(ctx context.Context) (any, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	SwitchChain(ctx context.Context, chainID int64) error
	AddChain(ctx context.Context, params entity.AddChainParams) error
	SendTransaction(ctx context.Context, tx TransactionRequest) (common.Hash, error)
	// Events is closed when the wallet is closed.
	Events() <-chan WalletEvent
	Close() error
}

// WalletConnector produces Wallets. One exists per wallet option the user
// can pick from.
type WalletConnector interface {
	ID() string
	Connect(ctx context.Context) (Wallet, error)
}
