// Package tx_submitter builds and sends approve, deposit and
// deposit-and-borrow transactions through the connected wallet. At most one
// transaction is pending at a time.
package tx_submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel/attribute"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/blockchain/abis"
	"github.com/archon-research/lendkit/internal/ports/inbound"
	"github.com/archon-research/lendkit/internal/ports/outbound"
	"github.com/archon-research/lendkit/internal/services/shared"
)

var _ inbound.TxSubmitter = (*Service)(nil)

var errReverted = errors.New("transaction reverted")

type Config struct {
	Registry *entity.ChainRegistry
	// ReceiptPollInterval is the delay between receipt lookups while waiting.
	ReceiptPollInterval time.Duration
	// MinimumAmountOut is passed to depositUnderlying as slippage bound.
	MinimumAmountOut *big.Int
	Metrics          outbound.MetricsRecorder
	Logger           *slog.Logger
}

func ConfigDefaults() Config {
	return Config{
		Registry:            entity.DefaultRegistry(),
		ReceiptPollInterval: 2 * time.Second,
		MinimumAmountOut:    new(big.Int),
		Metrics:             outbound.NopMetrics{},
		Logger:              slog.Default(),
	}
}

type Service struct {
	config    Config
	contracts *shared.Contracts
	gateway   *abi.ABI
	logger    *slog.Logger

	mu      sync.Mutex
	pending *entity.PendingAction
}

func NewService(config Config) (*Service, error) {
	defaults := ConfigDefaults()
	if config.Registry == nil {
		config.Registry = defaults.Registry
	}
	if config.ReceiptPollInterval <= 0 {
		config.ReceiptPollInterval = defaults.ReceiptPollInterval
	}
	if config.MinimumAmountOut == nil {
		config.MinimumAmountOut = defaults.MinimumAmountOut
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
	gateway, err := abis.GetWETHGatewayABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load gateway ABI: %w", err)
	}

	return &Service{
		config:    config,
		contracts: contracts,
		gateway:   gateway,
		logger:    config.Logger.With("component", "tx-submitter"),
	}, nil
}

// Pending returns the in-flight action, if any.
func (s *Service) Pending() (entity.PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return entity.PendingAction{}, false
	}
	return *s.pending, true
}

func (s *Service) begin(kind entity.ActionKind, symbol string) (*entity.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return nil, fmt.Errorf("%w: %s", entity.ErrActionPending, s.pending.Kind)
	}
	s.pending = &entity.PendingAction{Kind: kind, Asset: symbol, StartedAt: time.Now()}
	return s.pending, nil
}

func (s *Service) setHash(action *entity.PendingAction, hash common.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == action {
		action.TxHash = hash
	}
}

func (s *Service) finish(action *entity.PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == action {
		s.pending = nil
	}
}

func (s *Service) resolve(provider *outbound.Provider, asset entity.UnderlyingAsset) (entity.Chain, common.Address, error) {
	if provider == nil || provider.Wallet == nil || provider.Reader == nil {
		return entity.Chain{}, common.Address{}, entity.ErrNotConnected
	}
	chain, ok := s.config.Registry.Get(provider.ChainID)
	if !ok {
		return entity.Chain{}, common.Address{}, &entity.UnsupportedChainError{ChainID: provider.ChainID}
	}
	token, ok := asset.AddressOn(chain.ChainID)
	if !ok {
		return entity.Chain{}, common.Address{}, fmt.Errorf("%w: %s on chain %d", entity.ErrUnknownAsset, asset.Symbol, chain.ChainID)
	}
	return chain, token, nil
}

// Approve grants the lending contract an allowance of amount. Assets with
// non-standard approval semantics get their nonzero allowance reset to zero
// first, and the reset is confirmed before the real approval is sent.
func (s *Service) Approve(ctx context.Context, asset entity.UnderlyingAsset, amount *big.Int, provider *outbound.Provider) (tx inbound.PendingTransaction, err error) {
	if asset.Native {
		return nil, entity.ErrApprovalNotRequired
	}
	chain, token, err := s.resolve(provider, asset)
	if err != nil {
		return nil, err
	}
	spender := chain.AlchemistFor(token)

	action, err := s.begin(entity.ActionApprove, asset.Symbol)
	if err != nil {
		return nil, err
	}

	ctx, span := shared.StartSpan(ctx, "tx_submitter.Approve",
		attribute.String("asset", asset.Symbol),
		attribute.Int64("chain_id", chain.ChainID))
	defer func() { shared.EndSpan(span, err) }()

	if asset.NonStandardApproval {
		current, err := shared.CallBigInt(ctx, provider.Reader, s.contracts.ERC20, token, "allowance", provider.Account, spender)
		if err != nil {
			s.finish(action)
			return nil, &entity.TransactionFailure{Action: entity.ActionApprove, Err: &entity.ReadFailure{Op: "allowance", Err: err}}
		}
		if current.Sign() != 0 {
			s.logger.Info("resetting allowance before approval", "asset", asset.Symbol, "current", current.String())
			reset, err := s.sendApprove(ctx, action, provider, token, spender, new(big.Int))
			if err != nil {
				return nil, err
			}
			if _, err := reset.Wait(ctx); err != nil {
				s.finish(action)
				return nil, err
			}
			// Wait released the slot; take it again for the real approval.
			if action, err = s.begin(entity.ActionApprove, asset.Symbol); err != nil {
				return nil, err
			}
		}
	}

	return s.sendApprove(ctx, action, provider, token, spender, amount)
}

func (s *Service) sendApprove(ctx context.Context, action *entity.PendingAction, provider *outbound.Provider, token, spender common.Address, amount *big.Int) (*PendingTx, error) {
	data, err := s.contracts.ERC20.Pack("approve", spender, amount)
	if err != nil {
		s.finish(action)
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return s.send(ctx, action, provider, outbound.TransactionRequest{From: provider.Account, To: token, Data: data})
}

// DepositUnderlying deposits amount of asset into yieldToken. Native ETH is
// wrapped and deposited by the gateway, forwarding amount as value.
func (s *Service) DepositUnderlying(ctx context.Context, asset entity.UnderlyingAsset, yieldToken common.Address, amount *big.Int, provider *outbound.Provider) (tx inbound.PendingTransaction, err error) {
	chain, token, err := s.resolve(provider, asset)
	if err != nil {
		return nil, err
	}

	var req outbound.TransactionRequest
	if asset.Native {
		if !chain.SupportsNativeDeposit() {
			return nil, fmt.Errorf("native deposits are not available on %s", chain.Name)
		}
		data, err := s.gateway.Pack("depositUnderlying", chain.Contracts.AlchemistETH, yieldToken, amount, provider.Account, s.config.MinimumAmountOut)
		if err != nil {
			return nil, fmt.Errorf("failed to pack gateway deposit: %w", err)
		}
		req = outbound.TransactionRequest{From: provider.Account, To: chain.Contracts.WETHGateway, Data: data, Value: new(big.Int).Set(amount)}
	} else {
		data, err := s.depositCall(yieldToken, amount, provider.Account)
		if err != nil {
			return nil, err
		}
		req = outbound.TransactionRequest{From: provider.Account, To: chain.AlchemistFor(token), Data: data}
	}

	action, err := s.begin(entity.ActionDeposit, asset.Symbol)
	if err != nil {
		return nil, err
	}

	ctx, span := shared.StartSpan(ctx, "tx_submitter.DepositUnderlying",
		attribute.String("asset", asset.Symbol),
		attribute.Int64("chain_id", chain.ChainID),
		attribute.Bool("native", asset.Native))
	defer func() { shared.EndSpan(span, err) }()

	return s.send(ctx, action, provider, req)
}

// DepositAndBorrow deposits and mints in a single lending-contract
// multicall so both apply or neither does.
func (s *Service) DepositAndBorrow(ctx context.Context, asset entity.UnderlyingAsset, yieldToken common.Address, depositAmount, borrowAmount *big.Int, provider *outbound.Provider) (tx inbound.PendingTransaction, err error) {
	if asset.Native {
		return nil, entity.ErrNativeBorrowUnsupported
	}
	chain, token, err := s.resolve(provider, asset)
	if err != nil {
		return nil, err
	}

	deposit, err := s.depositCall(yieldToken, depositAmount, provider.Account)
	if err != nil {
		return nil, err
	}
	mint, err := s.contracts.Alchemist.Pack("mint", borrowAmount, provider.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to pack mint: %w", err)
	}
	data, err := s.contracts.Alchemist.Pack("multicall", [][]byte{deposit, mint})
	if err != nil {
		return nil, fmt.Errorf("failed to pack multicall: %w", err)
	}

	action, err := s.begin(entity.ActionDepositAndBorrow, asset.Symbol)
	if err != nil {
		return nil, err
	}

	ctx, span := shared.StartSpan(ctx, "tx_submitter.DepositAndBorrow",
		attribute.String("asset", asset.Symbol),
		attribute.Int64("chain_id", chain.ChainID))
	defer func() { shared.EndSpan(span, err) }()

	return s.send(ctx, action, provider, outbound.TransactionRequest{From: provider.Account, To: chain.AlchemistFor(token), Data: data})
}

func (s *Service) depositCall(yieldToken common.Address, amount *big.Int, recipient common.Address) ([]byte, error) {
	data, err := s.contracts.Alchemist.Pack("depositUnderlying", yieldToken, amount, recipient, s.config.MinimumAmountOut)
	if err != nil {
		return nil, fmt.Errorf("failed to pack depositUnderlying: %w", err)
	}
	return data, nil
}

func (s *Service) send(ctx context.Context, action *entity.PendingAction, provider *outbound.Provider, req outbound.TransactionRequest) (*PendingTx, error) {
	hash, err := provider.Wallet.SendTransaction(ctx, req)
	if err != nil {
		s.finish(action)
		status := "failed"
		if errors.Is(err, entity.ErrUserRejected) {
			status = "rejected"
		}
		s.config.Metrics.RecordTransaction(ctx, string(action.Kind), status)
		s.logger.Warn("transaction not sent", "action", action.Kind, "asset", action.Asset, "error", err)
		return nil, &entity.TransactionFailure{Action: action.Kind, Err: err}
	}

	s.setHash(action, hash)
	s.config.Metrics.RecordTransaction(ctx, string(action.Kind), "sent")
	s.logger.Info("transaction sent", "action", action.Kind, "asset", action.Asset, "tx", hash.Hex())

	return &PendingTx{
		hash:     hash,
		action:   action,
		reader:   provider.Reader,
		service:  s,
		interval: s.config.ReceiptPollInterval,
	}, nil
}

// PendingTx is a sent transaction. Waiting on it releases the pending slot.
type PendingTx struct {
	hash     common.Hash
	action   *entity.PendingAction
	reader   outbound.ChainReader
	service  *Service
	interval time.Duration

	once    sync.Once
	receipt *types.Receipt
	err     error
}

func (p *PendingTx) Hash() common.Hash {
	return p.hash
}

// Wait polls for the receipt until it is mined or ctx ends. A cancelled
// wait leaves the action pending so it can be waited on again.
func (p *PendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := p.poll(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}

	p.once.Do(func() {
		p.receipt, p.err = receipt, err
		s := p.service
		kind := string(p.action.Kind)
		switch {
		case err != nil:
			s.config.Metrics.RecordTransaction(ctx, kind, "failed")
		case receipt.Status != types.ReceiptStatusSuccessful:
			p.err = &entity.TransactionFailure{Action: p.action.Kind, TxHash: p.hash, Err: errReverted}
			s.config.Metrics.RecordTransaction(ctx, kind, "reverted")
			s.logger.Warn("transaction reverted", "action", kind, "tx", p.hash.Hex())
		default:
			s.config.Metrics.RecordTransaction(ctx, kind, "mined")
			s.logger.Info("transaction mined", "action", kind, "tx", p.hash.Hex(), "block", receipt.BlockNumber)
		}
		s.finish(p.action)
	})
	return p.receipt, p.err
}

func (p *PendingTx) poll(ctx context.Context) (*types.Receipt, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		receipt, err := p.reader.TransactionReceipt(ctx, p.hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, &entity.TransactionFailure{Action: p.action.Kind, TxHash: p.hash, Err: err}
		}
		select {
		case <-ctx.Done():
			return nil, &entity.TransactionFailure{Action: p.action.Kind, TxHash: p.hash, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
