package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/lendkit/internal/domain/entity"
)

// ChainReader is the read side of a chain connection. *ethclient.Client
// satisfies it.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// ChainDialer opens a ChainReader against one of a chain's RPC endpoints.
type ChainDialer interface {
	Dial(ctx context.Context, chain entity.Chain) (ChainReader, error)
}

// Provider is the read/write handle bound to the session's active chain.
type Provider struct {
	ChainID int64
	Account common.Address
	Reader  ChainReader
	Wallet  Wallet
}
