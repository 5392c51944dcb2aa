// Package application composes the connection, reader, calculator and
// submitter services into the lending front-end the CLI drives.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/blockchain"
	"github.com/archon-research/lendkit/internal/ports/inbound"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// LendingConfig holds configuration for the LendingApp.
type LendingConfig struct {
	// Registry resolves the session's chain id to its deployments.
	Registry *entity.ChainRegistry

	// Rediscover re-runs discovery in the background after an invalidation
	// when the session is still connected.
	Rediscover bool

	// Logger is the structured logger.
	Logger *slog.Logger
}

// LendingApp owns the state derived from the chain (deposit assets, the
// strategy mapping, the last borrow limit). Any account, chain or network
// change discards it.
type LendingApp struct {
	conn   inbound.ConnectionService
	reader inbound.PositionReader
	calc   inbound.BorrowCalculator
	tx     inbound.TxSubmitter

	registry   *entity.ChainRegistry
	rediscover bool
	logger     *slog.Logger

	mu         sync.Mutex
	generation uint64
	discovered *discovery
	maxBorrow  *big.Int

	// bg tracks background rediscovery.
	bg sync.WaitGroup
}

type discovery struct {
	chainID    int64
	assets     []entity.UnderlyingAsset
	strategies entity.StrategyMapping
}

func NewLendingApp(
	config LendingConfig,
	conn inbound.ConnectionService,
	reader inbound.PositionReader,
	calc inbound.BorrowCalculator,
	tx inbound.TxSubmitter,
) (*LendingApp, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection service is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("position reader is required")
	}
	if calc == nil {
		return nil, fmt.Errorf("borrow calculator is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction submitter is required")
	}
	if config.Registry == nil {
		config.Registry = entity.DefaultRegistry()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	app := &LendingApp{
		conn:       conn,
		reader:     reader,
		calc:       calc,
		tx:         tx,
		registry:   config.Registry,
		rediscover: config.Rediscover,
		logger:     config.Logger.With("component", "lending-app"),
	}
	conn.OnInvalidate(app.invalidate)
	return app, nil
}

func (a *LendingApp) invalidate(reason inbound.InvalidationReason) {
	a.mu.Lock()
	a.generation++
	a.discovered = nil
	a.maxBorrow = nil
	a.mu.Unlock()
	a.calc.Reset()
	a.logger.Info("derived state invalidated", "reason", reason)

	if !a.rediscover || !a.conn.Session().Connected() {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		if err := a.Discover(context.Background()); err != nil {
			a.logger.Warn("rediscovery failed", "reason", reason, "error", err)
		}
	}()
}

// Wait blocks until background rediscovery has finished.
func (a *LendingApp) Wait() {
	a.bg.Wait()
}

// active returns the provider and chain of the connected session.
func (a *LendingApp) active() (*outbound.Provider, entity.Chain, error) {
	provider, ok := a.conn.Provider()
	if !ok || provider == nil {
		return nil, entity.Chain{}, entity.ErrNotConnected
	}
	chain, ok := a.registry.Get(provider.ChainID)
	if !ok {
		return nil, entity.Chain{}, &entity.UnsupportedChainError{ChainID: provider.ChainID}
	}
	return provider, chain, nil
}

// Discover queries the active chain for its deposit assets and yield
// strategies. Results fetched across an invalidation are dropped.
func (a *LendingApp) Discover(ctx context.Context) error {
	_, err := a.discover(ctx)
	return err
}

func (a *LendingApp) discover(ctx context.Context) (*discovery, error) {
	provider, chain, err := a.active()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	gen := a.generation
	if d := a.discovered; d != nil && d.chainID == chain.ChainID {
		a.mu.Unlock()
		return d, nil
	}
	a.mu.Unlock()

	assets, err := a.reader.ListDepositAssets(ctx, chain, provider.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposit assets: %w", err)
	}
	strategies, err := a.reader.ListYieldStrategies(ctx, chain, provider.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to list yield strategies: %w", err)
	}
	d := &discovery{chainID: chain.ChainID, assets: assets, strategies: strategies}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return nil, fmt.Errorf("session changed during discovery")
	}
	a.discovered = d
	a.logger.Debug("discovery complete", "chainID", chain.ChainID, "assets", len(assets), "underlyings", len(strategies))
	return d, nil
}

// Assets lists the deposit assets offered on the active chain.
func (a *LendingApp) Assets(ctx context.Context) ([]entity.UnderlyingAsset, error) {
	d, err := a.discover(ctx)
	if err != nil {
		return nil, err
	}
	return append([]entity.UnderlyingAsset(nil), d.assets...), nil
}

func (a *LendingApp) asset(ctx context.Context, symbol string) (entity.UnderlyingAsset, *discovery, error) {
	d, err := a.discover(ctx)
	if err != nil {
		return entity.UnderlyingAsset{}, nil, err
	}
	for _, asset := range d.assets {
		if asset.Symbol == symbol {
			return asset, d, nil
		}
	}
	return entity.UnderlyingAsset{}, nil, fmt.Errorf("%w: %s is not offered on chain %d", entity.ErrUnknownAsset, symbol, d.chainID)
}

// Strategies describes the yield strategies accepting symbol, in the order
// the lending contract reports them.
func (a *LendingApp) Strategies(ctx context.Context, symbol string) ([]entity.YieldStrategy, error) {
	asset, d, err := a.asset(ctx, symbol)
	if err != nil {
		return nil, err
	}
	provider, _, err := a.active()
	if err != nil {
		return nil, err
	}
	underlying, ok := asset.AddressOn(d.chainID)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no address on chain %d", entity.ErrUnknownAsset, symbol, d.chainID)
	}
	return a.reader.DescribeStrategies(ctx, underlying, d.strategies.For(underlying), provider.Reader), nil
}

// Strategy returns the index-th strategy for symbol.
func (a *LendingApp) Strategy(ctx context.Context, symbol string, index int) (entity.YieldStrategy, error) {
	strategies, err := a.Strategies(ctx, symbol)
	if err != nil {
		return entity.YieldStrategy{}, err
	}
	if index < 0 || index >= len(strategies) {
		return entity.YieldStrategy{}, fmt.Errorf("no strategy %d for %s (have %d)", index, symbol, len(strategies))
	}
	return strategies[index], nil
}

// Position reads the connected user's position in strategy.
func (a *LendingApp) Position(ctx context.Context, strategy entity.YieldStrategy) (entity.Position, error) {
	provider, chain, err := a.active()
	if err != nil {
		return entity.Position{}, err
	}
	return a.reader.ReadPosition(ctx, provider.Account, strategy, chain, provider.Reader), nil
}

// TokenInfo reads the connected user's balance and allowance of symbol.
func (a *LendingApp) TokenInfo(ctx context.Context, symbol string) (entity.TokenInfo, error) {
	provider, chain, err := a.active()
	if err != nil {
		return entity.TokenInfo{}, err
	}
	return a.reader.ReadTokenInfo(ctx, symbol, provider.Account, chain, provider.Reader)
}

// MaxBorrow returns the additional amount the user may borrow after
// depositing amount of symbol, in the deposit asset's base units.
func (a *LendingApp) MaxBorrow(ctx context.Context, symbol, amount string) (*big.Int, error) {
	asset, _, err := a.asset(ctx, symbol)
	if err != nil {
		return nil, err
	}
	deposit := new(big.Int)
	if amount != "" {
		if deposit, err = blockchain.ParseUnits(amount, asset.Decimals); err != nil {
			return nil, fmt.Errorf("invalid deposit amount: %w", err)
		}
	}
	return a.maxBorrowFor(ctx, asset, deposit)
}

func (a *LendingApp) maxBorrowFor(ctx context.Context, asset entity.UnderlyingAsset, deposit *big.Int) (*big.Int, error) {
	provider, chain, err := a.active()
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	gen := a.generation
	a.mu.Unlock()

	limit := a.calc.ComputeMaxBorrow(ctx, asset, deposit, provider.Account, chain, provider.Reader)

	a.mu.Lock()
	if a.generation == gen {
		a.maxBorrow = new(big.Int).Set(limit)
	}
	a.mu.Unlock()
	return limit, nil
}

// LastMaxBorrow returns the most recent borrow limit, if one survives.
func (a *LendingApp) LastMaxBorrow() (*big.Int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.maxBorrow == nil {
		return nil, false
	}
	return new(big.Int).Set(a.maxBorrow), true
}

// Pending reports the in-flight transaction, if any.
func (a *LendingApp) Pending() (entity.PendingAction, bool) {
	return a.tx.Pending()
}

// Account returns the connected address.
func (a *LendingApp) Account() (common.Address, bool) {
	s := a.conn.Session()
	return s.Address, s.Connected()
}
