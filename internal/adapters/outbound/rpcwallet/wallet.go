// Package rpcwallet implements the Wallet port over a wallet's JSON-RPC
// endpoint (a local signer such as Frame, or any EIP-1193 bridge that
// speaks HTTP or WebSocket).
//
// JSON-RPC endpoints do not push events, so the wallet polls eth_accounts,
// eth_chainId and net_version and synthesises accountsChanged, chainChanged
// and network events from the differences.
package rpcwallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethhexutil "github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/hexutil"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Compile-time checks.
var (
	_ outbound.Wallet          = (*Wallet)(nil)
	_ outbound.WalletConnector = (*Connector)(nil)
)

// Config holds wallet endpoint configuration.
type Config struct {
	// ID names the connector in the wallet picker and the session cache.
	ID string
	// URL is the wallet's JSON-RPC endpoint (http, https, ws or wss).
	URL string
	// PollInterval is how often the wallet state is sampled for events.
	PollInterval time.Duration
	// RateLimit caps requests per second to the wallet.
	RateLimit rate.Limit
}

// ConfigDefaults returns the defaults for a local signer.
func ConfigDefaults() Config {
	return Config{
		ID:           "rpc",
		URL:          "http://127.0.0.1:1248",
		PollInterval: 2 * time.Second,
		RateLimit:    rate.Limit(20),
	}
}

// Connector dials the wallet endpoint.
type Connector struct {
	cfg    Config
	logger *slog.Logger
}

func NewConnector(cfg Config, logger *slog.Logger) (*Connector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("wallet rpc url is required")
	}
	defaults := ConfigDefaults()
	if cfg.ID == "" {
		cfg.ID = defaults.ID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{cfg: cfg, logger: logger.With("component", "rpcwallet", "connector", cfg.ID)}, nil
}

func (c *Connector) ID() string {
	return c.cfg.ID
}

// Connect dials the endpoint and starts the event poller.
func (c *Connector) Connect(ctx context.Context) (outbound.Wallet, error) {
	client, err := rpc.DialContext(ctx, c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", entity.ErrWalletUnavailable, c.cfg.URL, err)
	}
	w := newWallet(client, c.cfg, c.logger)
	w.wg.Add(1)
	go w.poll()
	return w, nil
}

// Wallet is a connected wallet endpoint.
type Wallet struct {
	client   *rpc.Client
	limiter  *rate.Limiter
	interval time.Duration
	logger   *slog.Logger

	events    chan outbound.WalletEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newWallet(client *rpc.Client, cfg Config, logger *slog.Logger) *Wallet {
	return &Wallet{
		client:   client,
		limiter:  rate.NewLimiter(cfg.RateLimit, 1),
		interval: cfg.PollInterval,
		logger:   logger,
		events:   make(chan outbound.WalletEvent, 8),
		done:     make(chan struct{}),
	}
}

func (w *Wallet) request(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := w.client.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, mapError(err))
	}
	return nil
}

// mapError turns provider error codes into entity.WalletError so callers
// can match them with errors.Is.
func mapError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &entity.WalletError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}

// ChainID returns the raw eth_chainId answer; it is normalised upstream.
func (w *Wallet) ChainID(ctx context.Context) (any, error) {
	var raw json.RawMessage
	if err := w.request(ctx, &raw, "eth_chainId"); err != nil {
		return nil, err
	}
	return raw, nil
}

func (w *Wallet) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.request(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *Wallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := w.request(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w *Wallet) SwitchChain(ctx context.Context, chainID int64) error {
	return w.request(ctx, nil, "wallet_switchEthereumChain", map[string]string{
		"chainId": hexutil.EncodeChainID(chainID),
	})
}

type nativeCurrencyParam struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParam struct {
	ChainID           string              `json:"chainId"`
	ChainName         string              `json:"chainName"`
	NativeCurrency    nativeCurrencyParam `json:"nativeCurrency"`
	RPCURLs           []string            `json:"rpcUrls"`
	BlockExplorerURLs []string            `json:"blockExplorerUrls,omitempty"`
}

func (w *Wallet) AddChain(ctx context.Context, params entity.AddChainParams) error {
	return w.request(ctx, nil, "wallet_addEthereumChain", addChainParam{
		ChainID:   hexutil.EncodeChainID(params.ChainID),
		ChainName: params.ChainName,
		NativeCurrency: nativeCurrencyParam{
			Name:     params.NativeCurrency.Name,
			Symbol:   params.NativeCurrency.Symbol,
			Decimals: params.NativeCurrency.Decimals,
		},
		RPCURLs:           params.RPCURLs,
		BlockExplorerURLs: params.BlockExplorerURLs,
	})
}

type txArgs struct {
	From  common.Address    `json:"from"`
	To    common.Address    `json:"to"`
	Data  gethhexutil.Bytes `json:"data"`
	Value *gethhexutil.Big  `json:"value,omitempty"`
}

func (w *Wallet) SendTransaction(ctx context.Context, tx outbound.TransactionRequest) (common.Hash, error) {
	args := txArgs{From: tx.From, To: tx.To, Data: tx.Data}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*gethhexutil.Big)(tx.Value)
	}
	var hash common.Hash
	if err := w.request(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (w *Wallet) Events() <-chan outbound.WalletEvent {
	return w.events
}

// Close stops the poller, closes the event channel and the connection.
func (w *Wallet) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		close(w.events)
		w.client.Close()
	})
	return nil
}

type snapshot struct {
	accounts []common.Address
	chain    string
	network  string
}

func (w *Wallet) sample(ctx context.Context) (snapshot, error) {
	var s snapshot
	accounts, err := w.Accounts(ctx)
	if err != nil {
		return s, err
	}
	var chain json.RawMessage
	if err := w.request(ctx, &chain, "eth_chainId"); err != nil {
		return s, err
	}
	var network string
	if err := w.request(ctx, &network, "net_version"); err != nil {
		return s, err
	}
	return snapshot{accounts: accounts, chain: string(chain), network: network}, nil
}

// poll emits the initial network event on the first sample, then one event
// per observed change. A network change without a chain change (the wallet
// swapped its RPC backend) is reported as a network event.
func (w *Wallet) poll() {
	defer w.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var prev *snapshot
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		cur, err := w.sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Debug("wallet poll failed", "error", err)
		} else {
			for _, ev := range diff(prev, cur) {
				if !w.emit(ev) {
					return
				}
			}
			prev = &cur
		}

		select {
		case <-w.done:
			return
		case <-ticker.C:
		}
	}
}

func diff(prev *snapshot, cur snapshot) []outbound.WalletEvent {
	chain := json.RawMessage(cur.chain)
	if prev == nil {
		return []outbound.WalletEvent{{Kind: outbound.EventNetworkChanged, Chain: chain}}
	}
	var out []outbound.WalletEvent
	if !sameAccounts(prev.accounts, cur.accounts) {
		out = append(out, outbound.WalletEvent{
			Kind:     outbound.EventAccountsChanged,
			Accounts: append([]common.Address(nil), cur.accounts...),
		})
	}
	switch {
	case prev.chain != cur.chain:
		out = append(out, outbound.WalletEvent{Kind: outbound.EventChainChanged, Chain: chain})
	case prev.network != cur.network:
		out = append(out, outbound.WalletEvent{
			Kind:  outbound.EventNetworkChanged,
			Chain: chain,
			Prev:  json.RawMessage(prev.chain),
		})
	}
	return out
}

func (w *Wallet) emit(ev outbound.WalletEvent) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.done:
		return false
	}
}

func sameAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
