// Package ethrpc provides the ChainReader and ChainDialer adapters over
// go-ethereum's ethclient.
//
// Every request passes a token-bucket limiter, and transient transport
// failures (timeouts, refused connections, HTTP 429/5xx) are retried with
// exponential backoff. Reverts and "not found" answers are returned as is.
package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/retry"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// Compile-time checks.
var (
	_ outbound.ChainReader = (*Client)(nil)
	_ outbound.ChainDialer = (*Dialer)(nil)
)

// Config holds JSON-RPC client configuration.
type Config struct {
	// RateLimit is the sustained requests per second per endpoint.
	RateLimit rate.Limit
	// RateBurst is the bucket size.
	RateBurst int
	// DialTimeout bounds dialing plus the chain id check for one URL.
	DialTimeout time.Duration
	// Retry configures retries of transient failures.
	Retry retry.Config
}

// ConfigDefaults returns defaults suitable for public endpoints.
func ConfigDefaults() Config {
	return Config{
		RateLimit:   rate.Limit(10),
		RateBurst:   5,
		DialTimeout: 10 * time.Second,
		Retry:       retry.DefaultConfig(),
	}
}

// Client is a rate-limited, retrying outbound.ChainReader.
type Client struct {
	eth     *ethclient.Client
	url     string
	limiter *rate.Limiter
	retry   retry.Config
	logger  *slog.Logger
}

// NewClient wraps an established RPC connection.
func NewClient(rpcClient *rpc.Client, url string, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Inf
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	return &Client{
		eth:     ethclient.NewClient(rpcClient),
		url:     url,
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		retry:   cfg.Retry,
		logger:  logger.With("component", "ethrpc", "url", url),
	}
}

// URL returns the endpoint the client is bound to.
func (c *Client) URL() string {
	return c.url
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, c, "eth_chainId", func() (*big.Int, error) {
		return c.eth.ChainID(ctx)
	})
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, c, "eth_call", func() ([]byte, error) {
		return c.eth.CallContract(ctx, msg, blockNumber)
	})
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return call(ctx, c, "eth_getBalance", func() (*big.Int, error) {
		return c.eth.BalanceAt(ctx, account, blockNumber)
	})
}

func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return call(ctx, c, "eth_getTransactionReceipt", func() (*types.Receipt, error) {
		return c.eth.TransactionReceipt(ctx, txHash)
	})
}

func (c *Client) Close() {
	c.eth.Close()
}

func call[T any](ctx context.Context, c *Client, method string, fn func() (T, error)) (T, error) {
	onRetry := func(attempt int, err error, backoff time.Duration) {
		c.logger.Debug("retrying rpc call", "method", method, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return retry.Do(ctx, c.retry, IsTransient, onRetry, func() (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, fmt.Errorf("rate limiter: %w", err)
		}
		return fn()
	})
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ethereum.NotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		// -32005 is the common "limit exceeded" code of hosted nodes.
		return rpcErr.ErrorCode() == -32005
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "too many requests")
}

// Dialer opens Clients against a chain's RPC URLs, in order, keeping the
// first one that answers with the expected chain id.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = ConfigDefaults().DialTimeout
	}
	return &Dialer{cfg: cfg, logger: logger.With("component", "ethrpc-dialer")}
}

func (d *Dialer) Dial(ctx context.Context, chain entity.Chain) (outbound.ChainReader, error) {
	if len(chain.RPCURLs) == 0 {
		return nil, fmt.Errorf("chain %d has no RPC URLs", chain.ChainID)
	}
	var errs []error
	for _, url := range chain.RPCURLs {
		client, err := d.dialOne(ctx, chain.ChainID, url)
		if err == nil {
			return client, nil
		}
		d.logger.Warn("rpc endpoint unusable", "chainID", chain.ChainID, "url", url, "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("no usable RPC endpoint for %s: %w", chain.Name, errors.Join(errs...))
}

func (d *Dialer) dialOne(ctx context.Context, chainID int64, url string) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.cfg.DialTimeout)
	defer cancel()

	rpcClient, err := rpc.DialContext(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	client := NewClient(rpcClient, url, d.cfg, d.logger)

	got, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("eth_chainId on %s: %w", url, err)
	}
	if got.Int64() != chainID {
		client.Close()
		return nil, fmt.Errorf("%s serves chain %s, want %d", url, got, chainID)
	}
	return client, nil
}
