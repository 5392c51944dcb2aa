// Package borrow_capacity derives how much more a user may borrow from the
// lending contract given their existing yield-token positions and a
// proposed deposit.
//
// The computation is integer fixed-point throughout:
//
//	collateral = depositAmount + Σ (activeBalance − harvestableBalance) × shares / totalShares
//	maxBorrow  = collateral × 1e18 / minimumCollateralization − debt
//
// The result is expressed in the deposit asset's base units and clamped at
// zero.
package borrow_capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/blockchain"
	"github.com/archon-research/lendkit/internal/ports/inbound"
	"github.com/archon-research/lendkit/internal/ports/outbound"
	"github.com/archon-research/lendkit/internal/services/shared"
)

var _ inbound.BorrowCalculator = (*Calculator)(nil)

var (
	errZeroRatio       = errors.New("minimum collateralization is zero")
	errZeroTotalShares = errors.New("yield token has zero total shares")
)

type Config struct {
	NewMulticaller shared.MulticallerFactory
	Metrics        outbound.MetricsRecorder
	Logger         *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		NewMulticaller: shared.DefaultMulticaller,
		Metrics:        outbound.NopMetrics{},
		Logger:         slog.Default(),
	}
}

// Calculator computes borrow capacity. On a failed read it returns the
// last successfully computed value (zero initially).
type Calculator struct {
	contracts      *shared.Contracts
	newMulticaller shared.MulticallerFactory
	metrics        outbound.MetricsRecorder
	logger         *slog.Logger

	mu   sync.Mutex
	last *big.Int
}

func NewCalculator(config Config) (*Calculator, error) {
	defaults := ConfigDefaults()
	if config.NewMulticaller == nil {
		config.NewMulticaller = defaults.NewMulticaller
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	contracts, err := shared.LoadContracts()
	if err != nil {
		return nil, err
	}

	return &Calculator{
		contracts:      contracts,
		newMulticaller: config.NewMulticaller,
		metrics:        config.Metrics,
		logger:         config.Logger.With("component", "borrow-capacity"),
		last:           new(big.Int),
	}, nil
}

// ComputeMaxBorrow returns the additional amount user may borrow after
// depositing depositAmount (base units) of asset.
func (c *Calculator) ComputeMaxBorrow(ctx context.Context, asset entity.UnderlyingAsset, depositAmount *big.Int, user common.Address, chain entity.Chain, reader outbound.ChainReader) *big.Int {
	amount, err := c.compute(ctx, asset, depositAmount, user, chain, reader)
	if err != nil {
		c.metrics.RecordReadFailure(ctx, "max_borrow")
		c.logger.Warn("failed to compute borrow capacity",
			"asset", asset.Symbol,
			"chainID", chain.ChainID,
			"user", user.Hex(),
			"error", err)
		return c.Last()
	}

	c.mu.Lock()
	c.last = amount
	c.mu.Unlock()
	return new(big.Int).Set(amount)
}

// Last returns the last computed value.
func (c *Calculator) Last() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.last)
}

// Reset forgets the last computed value.
func (c *Calculator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = new(big.Int)
}

func (c *Calculator) compute(ctx context.Context, asset entity.UnderlyingAsset, depositAmount *big.Int, user common.Address, chain entity.Chain, reader outbound.ChainReader) (*big.Int, error) {
	alchemist, err := chain.AlchemistForAsset(asset)
	if err != nil {
		return nil, err
	}

	ratio, err := shared.CallBigInt(ctx, reader, c.contracts.Alchemist, alchemist, "minimumCollateralization")
	if err != nil {
		return nil, &entity.ReadFailure{Op: "minimumCollateralization", Err: err}
	}
	if ratio.Sign() <= 0 {
		return nil, &entity.ReadFailure{Op: "minimumCollateralization", Err: errZeroRatio}
	}

	debt, tokens, err := c.account(ctx, reader, alchemist, user)
	if err != nil {
		return nil, &entity.ReadFailure{Op: "accounts", Err: err}
	}

	collateral, err := c.positionsValue(ctx, reader, alchemist, user, tokens)
	if err != nil {
		return nil, err
	}
	if depositAmount != nil {
		collateral.Add(collateral, depositAmount)
	}

	return MaxBorrow(collateral, ratio, debt), nil
}

// MaxBorrow is collateral × 1e18 / ratio − debt, floored and clamped at zero.
func MaxBorrow(collateral, ratio, debt *big.Int) *big.Int {
	out := new(big.Int).Mul(collateral, blockchain.Pow10(entity.LoanDecimals))
	out.Quo(out, ratio)
	if debt != nil {
		out.Sub(out, debt)
	}
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}

func (c *Calculator) account(ctx context.Context, reader outbound.ChainReader, alchemist, user common.Address) (*big.Int, []common.Address, error) {
	out, err := shared.CallView(ctx, reader, c.contracts.Alchemist, alchemist, "accounts", user)
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("accounts returned %d values", len(out))
	}
	debt, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("accounts debt has type %T", out[0])
	}
	tokens, ok := out[1].([]common.Address)
	if !ok {
		return nil, nil, fmt.Errorf("accounts depositedTokens has type %T", out[1])
	}
	return debt, tokens, nil
}

// positionsValue sums the user's share of each token's non-harvestable
// active balance.
func (c *Calculator) positionsValue(ctx context.Context, reader outbound.ChainReader, alchemist, user common.Address, tokens []common.Address) (*big.Int, error) {
	total := new(big.Int)
	if len(tokens) == 0 {
		return total, nil
	}

	mc, err := c.newMulticaller(reader, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicaller: %w", err)
	}

	params, err := c.contracts.YieldTokenParams(ctx, mc, alchemist, tokens)
	if err != nil {
		return nil, &entity.ReadFailure{Op: "getYieldTokenParameters", Err: err}
	}
	shares, err := c.shares(ctx, mc, alchemist, user, tokens)
	if err != nil {
		return nil, &entity.ReadFailure{Op: "positions", Err: err}
	}

	for i, token := range tokens {
		p := params[i]
		if p == nil {
			return nil, &entity.ReadFailure{Op: "getYieldTokenParameters", Err: fmt.Errorf("no parameters for %s", token.Hex())}
		}
		if p.TotalShares == nil || p.TotalShares.Sign() == 0 {
			return nil, &entity.ReadFailure{Op: "getYieldTokenParameters", Err: fmt.Errorf("%s: %w", token.Hex(), errZeroTotalShares)}
		}
		value := new(big.Int).Sub(p.ActiveBalance, p.HarvestableBalance)
		value.Mul(value, shares[i])
		value.Quo(value, p.TotalShares)
		total.Add(total, value)
	}
	return total, nil
}

func (c *Calculator) shares(ctx context.Context, mc outbound.Multicaller, alchemist, user common.Address, tokens []common.Address) ([]*big.Int, error) {
	calls := make([]outbound.Call, len(tokens))
	for i, token := range tokens {
		data, err := c.contracts.Alchemist.Pack("positions", user, token)
		if err != nil {
			return nil, fmt.Errorf("failed to pack positions: %w", err)
		}
		calls[i] = outbound.Call{Target: alchemist, AllowFailure: false, CallData: data}
	}

	results, err := mc.Execute(ctx, calls, nil)
	if err != nil {
		return nil, err
	}
	if len(results) != len(tokens) {
		return nil, fmt.Errorf("positions batch returned %d results for %d tokens", len(results), len(tokens))
	}

	out := make([]*big.Int, len(tokens))
	for i, r := range results {
		if !r.Success {
			return nil, fmt.Errorf("positions(%s) failed", tokens[i].Hex())
		}
		values, err := c.contracts.Alchemist.Unpack("positions", r.ReturnData)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack positions(%s): %w", tokens[i].Hex(), err)
		}
		n, ok := values[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("positions shares has type %T", values[0])
		}
		out[i] = n
	}
	return out, nil
}
