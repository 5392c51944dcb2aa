// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// InvalidationReason says why derived state must be discarded.
type InvalidationReason string

const (
	InvalidateAccountChanged InvalidationReason = "account_changed"
	InvalidateChainChanged   InvalidationReason = "chain_changed"
	InvalidateNetworkChanged InvalidationReason = "network_changed"
	InvalidateDisconnected   InvalidationReason = "disconnected"
)

// ConnectionService owns the wallet session.
type ConnectionService interface {
	// Connect connects to chainID, or the primary chain when chainID is 0.
	Connect(ctx context.Context, chainID int64) (*outbound.Provider, error)
	Disconnect(ctx context.Context) error
	// SwitchChain reports false without an error when the user rejected the
	// switch or the chain could not be added.
	SwitchChain(ctx context.Context, chainID int64) (bool, error)
	// Restore silently reconnects a persisted session. Failures leave the
	// session disconnected.
	Restore(ctx context.Context) bool
	HasCachedSession(ctx context.Context) bool
	Session() entity.Session
	Provider() (*outbound.Provider, bool)
	// OnInvalidate registers fn to run whenever derived state is stale.
	OnInvalidate(fn func(InvalidationReason))
}

// PositionReader reads protocol and token state. Every call queries the chain.
type PositionReader interface {
	ListUnderlyingAssets(ctx context.Context, chain entity.Chain, reader outbound.ChainReader) ([]common.Address, error)
	ListYieldStrategies(ctx context.Context, chain entity.Chain, reader outbound.ChainReader) (entity.StrategyMapping, error)
	ResolveSymbols(ctx context.Context, tokens []common.Address, reader outbound.ChainReader) map[common.Address]string
	DescribeStrategies(ctx context.Context, underlying common.Address, tokens []common.Address, reader outbound.ChainReader) []entity.YieldStrategy
	ListDepositAssets(ctx context.Context, chain entity.Chain, reader outbound.ChainReader) ([]entity.UnderlyingAsset, error)
	ReadPosition(ctx context.Context, user common.Address, strategy entity.YieldStrategy, chain entity.Chain, reader outbound.ChainReader) entity.Position
	ReadTokenInfo(ctx context.Context, symbol string, user common.Address, chain entity.Chain, reader outbound.ChainReader) (entity.TokenInfo, error)
}

// BorrowCalculator derives the additional amount a user may borrow.
type BorrowCalculator interface {
	// ComputeMaxBorrow never fails; on read errors it returns the last
	// computed value.
	ComputeMaxBorrow(ctx context.Context, asset entity.UnderlyingAsset, depositAmount *big.Int, user common.Address, chain entity.Chain, reader outbound.ChainReader) *big.Int
	Reset()
}

// PendingTransaction is a submitted transaction awaiting confirmation.
type PendingTransaction interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. A reverted transaction is
	// reported as *entity.TransactionFailure.
	Wait(ctx context.Context) (*types.Receipt, error)
}

// TxSubmitter builds and sends user transactions. At most one is pending.
type TxSubmitter interface {
	Approve(ctx context.Context, asset entity.UnderlyingAsset, amount *big.Int, provider *outbound.Provider) (PendingTransaction, error)
	DepositUnderlying(ctx context.Context, asset entity.UnderlyingAsset, yieldToken common.Address, amount *big.Int, provider *outbound.Provider) (PendingTransaction, error)
	DepositAndBorrow(ctx context.Context, asset entity.UnderlyingAsset, yieldToken common.Address, depositAmount, borrowAmount *big.Int, provider *outbound.Provider) (PendingTransaction, error)
	Pending() (entity.PendingAction, bool)
}
