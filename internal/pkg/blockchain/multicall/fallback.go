package multicall

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Fallback batches through Multicall3 and degrades to one eth_call per
// target once the aggregate call fails. The downgrade sticks for the life
// of the value.
type Fallback struct {
	batch  *Client
	direct *DirectCaller
	logger *slog.Logger

	mu        sync.Mutex
	useDirect bool
}

// NewFallback builds a Fallback against the canonical Multicall3 address.
func NewFallback(caller ContractCaller, logger *slog.Logger) (*Fallback, error) {
	batch, err := NewClient(caller, Multicall3Address)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		batch:  batch,
		direct: NewDirectCaller(caller),
		logger: logger.With("component", "multicall"),
	}, nil
}

func (f *Fallback) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	f.mu.Lock()
	direct := f.useDirect
	f.mu.Unlock()

	if !direct {
		results, err := f.batch.Execute(ctx, calls, blockNumber)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("multicall3 unavailable, falling back to direct calls", "error", err)
		f.mu.Lock()
		f.useDirect = true
		f.mu.Unlock()
	}

	results, err := f.direct.Execute(ctx, calls, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("direct calls: %w", err)
	}
	return results, nil
}

// Address reports the batching contract, or zero once degraded.
func (f *Fallback) Address() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.useDirect {
		return common.Address{}
	}
	return f.batch.Address()
}
