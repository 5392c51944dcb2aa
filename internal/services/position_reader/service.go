// Package position_reader reads protocol, position and token state from the
// lending contracts of the active chain. Nothing is cached: every call
// queries the chain.
package position_reader

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/ports/inbound"
	"github.com/archon-research/lendkit/internal/ports/outbound"
	"github.com/archon-research/lendkit/internal/services/shared"
)

var _ inbound.PositionReader = (*Service)(nil)

type Config struct {
	// NewMulticaller builds the read batcher. Defaults to Multicall3 with a
	// direct-call fallback.
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

type Service struct {
	contracts      *shared.Contracts
	newMulticaller shared.MulticallerFactory
	metrics        outbound.MetricsRecorder
	logger         *slog.Logger
}

func NewService(config Config) (*Service, error) {
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

	return &Service{
		contracts:      contracts,
		newMulticaller: config.NewMulticaller,
		metrics:        config.Metrics,
		logger:         config.Logger.With("component", "position-reader"),
	}, nil
}

// readFailed logs a recovered read error.
func (s *Service) readFailed(ctx context.Context, chain entity.Chain, op string, contract common.Address, err error) {
	s.metrics.RecordReadFailure(ctx, op)
	s.logger.Warn("contract read failed",
		"op", op,
		"chainID", chain.ChainID,
		"contract", contract.Hex(),
		"error", err)
}

// lendingContracts returns the contracts to query, ETH variant first.
func lendingContracts(chain entity.Chain) (secondary *common.Address, primary common.Address) {
	if chain.HasAlchemistETH() {
		eth := chain.Contracts.AlchemistETH
		secondary = &eth
	}
	return secondary, chain.Contracts.Alchemist
}

// ListUnderlyingAssets returns the underlying tokens accepted on chain, the
// ETH lending contract's first. A failing ETH contract is logged and skipped.
func (s *Service) ListUnderlyingAssets(ctx context.Context, chain entity.Chain, reader outbound.ChainReader) ([]common.Address, error) {
	const op = "getSupportedUnderlyingTokens"
	var tokens []common.Address

	secondary, primary := lendingContracts(chain)
	if secondary != nil {
		got, err := shared.CallAddresses(ctx, reader, s.contracts.Alchemist, *secondary, op)
		if err != nil {
			s.readFailed(ctx, chain, op, *secondary, err)
		} else {
			tokens = append(tokens, got...)
		}
	}

	got, err := shared.CallAddresses(ctx, reader, s.contracts.Alchemist, primary, op)
	if err != nil {
		s.readFailed(ctx, chain, op, primary, err)
		return nil, &entity.ReadFailure{Op: op, Err: err}
	}
	tokens = append(tokens, got...)

	return dedupe(tokens), nil
}

// ListYieldStrategies maps each underlying token to the yield tokens
// wrapping it, in contract order with the ETH contract's first.
func (s *Service) ListYieldStrategies(ctx context.Context, chain entity.Chain, reader outbound.ChainReader) (entity.StrategyMapping, error) {
	mc, err := s.newMulticaller(reader, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicaller: %w", err)
	}

	mapping := make(entity.StrategyMapping)
	secondary, primary := lendingContracts(chain)
	if secondary != nil {
		if err := s.collectStrategies(ctx, mc, chain, *secondary, reader, mapping); err != nil {
			s.readFailed(ctx, chain, "getSupportedYieldTokens", *secondary, err)
		}
	}
	if err := s.collectStrategies(ctx, mc, chain, primary, reader, mapping); err != nil {
		s.readFailed(ctx, chain, "getSupportedYieldTokens", primary, err)
		return nil, &entity.ReadFailure{Op: "getSupportedYieldTokens", Err: err}
	}
	return mapping, nil
}

func (s *Service) collectStrategies(ctx context.Context, mc outbound.Multicaller, chain entity.Chain, alchemist common.Address, reader outbound.ChainReader, mapping entity.StrategyMapping) error {
	tokens, err := shared.CallAddresses(ctx, reader, s.contracts.Alchemist, alchemist, "getSupportedYieldTokens")
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	params, err := s.contracts.YieldTokenParams(ctx, mc, alchemist, tokens)
	if err != nil {
		return err
	}
	for i, p := range params {
		if p == nil {
			s.readFailed(ctx, chain, "getYieldTokenParameters", alchemist, fmt.Errorf("no parameters for %s", tokens[i].Hex()))
			continue
		}
		mapping.Add(p.UnderlyingToken, tokens[i])
	}
	return nil
}

// ResolveSymbols reads symbol() for each token. Unreadable symbols are
// omitted from the result.
func (s *Service) ResolveSymbols(ctx context.Context, tokens []common.Address, reader outbound.ChainReader) map[common.Address]string {
	out := make(map[common.Address]string, len(tokens))
	if len(tokens) == 0 {
		return out
	}
	mc, err := s.newMulticaller(reader, s.logger)
	if err != nil {
		s.logger.Warn("failed to create multicaller", "error", err)
		return out
	}
	symbols, err := s.contracts.Strings(ctx, mc, "symbol", tokens)
	if err != nil {
		s.metrics.RecordReadFailure(ctx, "symbol")
		s.logger.Warn("failed to resolve token symbols", "tokens", len(tokens), "error", err)
		return out
	}
	for i, sym := range symbols {
		if sym != "" {
			out[tokens[i]] = sym
		}
	}
	return out
}

// DescribeStrategies reads name() and symbol() of each yield token.
func (s *Service) DescribeStrategies(ctx context.Context, underlying common.Address, tokens []common.Address, reader outbound.ChainReader) []entity.YieldStrategy {
	out := make([]entity.YieldStrategy, len(tokens))
	for i, token := range tokens {
		out[i] = entity.YieldStrategy{Token: token, Underlying: underlying}
	}
	if len(tokens) == 0 {
		return out
	}

	mc, err := s.newMulticaller(reader, s.logger)
	if err != nil {
		s.logger.Warn("failed to create multicaller", "error", err)
		return out
	}
	names, err := s.contracts.Strings(ctx, mc, "name", tokens)
	if err != nil {
		s.metrics.RecordReadFailure(ctx, "name")
		s.logger.Warn("failed to read strategy names", "error", err)
	}
	symbols, err := s.contracts.Strings(ctx, mc, "symbol", tokens)
	if err != nil {
		s.metrics.RecordReadFailure(ctx, "symbol")
		s.logger.Warn("failed to read strategy symbols", "error", err)
	}
	for i := range out {
		if i < len(names) {
			out[i].Name = names[i]
		}
		if i < len(symbols) {
			out[i].Symbol = symbols[i]
		}
	}
	return out
}

// ListDepositAssets resolves the supported underlying tokens into catalog
// assets, prepending native ETH where the chain has a wrapping gateway.
func (s *Service) ListDepositAssets(ctx context.Context, chain entity.Chain, reader outbound.ChainReader) ([]entity.UnderlyingAsset, error) {
	tokens, err := s.ListUnderlyingAssets(ctx, chain, reader)
	if err != nil {
		return nil, err
	}
	symbols := s.ResolveSymbols(ctx, tokens, reader)

	var assets []entity.UnderlyingAsset
	if chain.SupportsNativeDeposit() {
		if native, ok := entity.LookupAsset(entity.NativeSymbol); ok {
			assets = append(assets, native)
		}
	}

	seen := make(map[string]bool)
	for _, token := range tokens {
		asset, ok := entity.AssetByAddress(chain.ChainID, token)
		if !ok {
			asset, ok = entity.LookupAsset(symbols[token])
		}
		if !ok || asset.Native {
			s.logger.Debug("skipping token outside the asset catalog", "token", token.Hex(), "symbol", symbols[token])
			continue
		}
		if seen[asset.Symbol] {
			continue
		}
		seen[asset.Symbol] = true
		assets = append(assets, asset)
	}
	return assets, nil
}

// ReadPosition returns the user's shares and last accrued weight in strategy.
// Any failure yields a zero position.
func (s *Service) ReadPosition(ctx context.Context, user common.Address, strategy entity.YieldStrategy, chain entity.Chain, reader outbound.ChainReader) entity.Position {
	alchemist := chain.AlchemistFor(strategy.Underlying)
	out, err := shared.CallView(ctx, reader, s.contracts.Alchemist, alchemist, "positions", user, strategy.Token)
	if err == nil && len(out) < 2 {
		err = fmt.Errorf("positions returned %d values", len(out))
	}
	if err != nil {
		s.readFailed(ctx, chain, "positions", alchemist, err)
		return entity.ZeroPosition(user, strategy.Token)
	}

	shares, ok1 := out[0].(*big.Int)
	weight, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		s.readFailed(ctx, chain, "positions", alchemist, fmt.Errorf("unexpected types %T, %T", out[0], out[1]))
		return entity.ZeroPosition(user, strategy.Token)
	}
	return entity.Position{
		Owner:             user,
		YieldToken:        strategy.Token,
		Shares:            shares,
		LastAccruedWeight: weight,
	}
}

// ReadTokenInfo returns the user's balance of symbol and the allowance held
// by the lending contract accepting it. The native asset reports an
// unlimited allowance.
func (s *Service) ReadTokenInfo(ctx context.Context, symbol string, user common.Address, chain entity.Chain, reader outbound.ChainReader) (entity.TokenInfo, error) {
	asset, ok := entity.LookupAsset(symbol)
	if !ok {
		return entity.TokenInfo{}, fmt.Errorf("%w: %s", entity.ErrUnknownAsset, symbol)
	}

	info := entity.TokenInfo{Symbol: asset.Symbol, Decimals: asset.Decimals, Native: asset.Native}
	if asset.Native {
		balance, err := reader.BalanceAt(ctx, user, nil)
		if err != nil {
			s.readFailed(ctx, chain, "balance", user, err)
			return entity.TokenInfo{}, &entity.ReadFailure{Op: "balance", Err: err}
		}
		info.Balance = balance
		info.Allowance = new(big.Int).Set(math.MaxBig256)
		return info, nil
	}

	token, ok := asset.AddressOn(chain.ChainID)
	if !ok {
		return entity.TokenInfo{}, fmt.Errorf("%w: %s on chain %d", entity.ErrUnknownAsset, symbol, chain.ChainID)
	}
	spender := chain.AlchemistFor(token)

	balance, err := shared.CallBigInt(ctx, reader, s.contracts.ERC20, token, "balanceOf", user)
	if err != nil {
		s.readFailed(ctx, chain, "balanceOf", token, err)
		return entity.TokenInfo{}, &entity.ReadFailure{Op: "balanceOf", Err: err}
	}
	allowance, err := shared.CallBigInt(ctx, reader, s.contracts.ERC20, token, "allowance", user, spender)
	if err != nil {
		s.readFailed(ctx, chain, "allowance", token, err)
		return entity.TokenInfo{}, &entity.ReadFailure{Op: "allowance", Err: err}
	}
	info.Balance = balance
	info.Allowance = allowance
	return info, nil
}

func dedupe(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]bool, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

