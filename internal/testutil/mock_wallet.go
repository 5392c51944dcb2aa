package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/domain/entity"
	"github.com/archon-research/lendkit/internal/pkg/hexutil"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// MockWallet implements outbound.Wallet. Without overrides it behaves like
// a browser wallet: it knows a set of chains, switches between them, and
// answers 4902 for chains it has not been told about.
type MockWallet struct {
	mu sync.Mutex

	// Chain is returned by ChainID. Keep it a hex string to mimic desktop
	// wallets or an int to mimic mobile ones.
	Chain    any
	Addrs    []common.Address
	Known    map[int64]bool
	Switches []int64
	Added    []entity.AddChainParams
	Sent     []outbound.TransactionRequest

	ChainIDFn         func(ctx context.Context) (any, error)
	RequestAccountsFn func(ctx context.Context) ([]common.Address, error)
	SwitchChainFn     func(ctx context.Context, chainID int64) error
	AddChainFn        func(ctx context.Context, params entity.AddChainParams) error
	SendTransactionFn func(ctx context.Context, tx outbound.TransactionRequest) (common.Hash, error)

	// RejectSwitch answers every switch request with a user rejection.
	RejectSwitch bool

	events chan outbound.WalletEvent
	closed bool
}

func NewMockWallet(chainID int64, addrs ...common.Address) *MockWallet {
	return &MockWallet{
		Chain:  hexutil.EncodeChainID(chainID),
		Addrs:  addrs,
		Known:  map[int64]bool{chainID: true},
		events: make(chan outbound.WalletEvent, 16),
	}
}

// Know marks chains as already added to the wallet.
func (w *MockWallet) Know(chainIDs ...int64) *MockWallet {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range chainIDs {
		w.Known[id] = true
	}
	return w
}

func (w *MockWallet) ChainID(ctx context.Context) (any, error) {
	if w.ChainIDFn != nil {
		return w.ChainIDFn(ctx)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Chain, nil
}

func (w *MockWallet) Accounts(context.Context) ([]common.Address, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]common.Address(nil), w.Addrs...), nil
}

func (w *MockWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if w.RequestAccountsFn != nil {
		return w.RequestAccountsFn(ctx)
	}
	return w.Accounts(ctx)
}

func (w *MockWallet) SwitchChain(ctx context.Context, chainID int64) error {
	w.mu.Lock()
	w.Switches = append(w.Switches, chainID)
	w.mu.Unlock()
	if w.SwitchChainFn != nil {
		return w.SwitchChainFn(ctx, chainID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.RejectSwitch {
		return &entity.WalletError{Code: entity.WalletCodeUserRejected, Message: "User rejected the request."}
	}
	if !w.Known[chainID] {
		return &entity.WalletError{Code: entity.WalletCodeUnknownChain, Message: "Unrecognized chain ID"}
	}
	w.Chain = hexutil.EncodeChainID(chainID)
	return nil
}

func (w *MockWallet) AddChain(ctx context.Context, params entity.AddChainParams) error {
	w.mu.Lock()
	w.Added = append(w.Added, params)
	w.mu.Unlock()
	if w.AddChainFn != nil {
		return w.AddChainFn(ctx, params)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Known[params.ChainID] = true
	return nil
}

func (w *MockWallet) SendTransaction(ctx context.Context, tx outbound.TransactionRequest) (common.Hash, error) {
	w.mu.Lock()
	w.Sent = append(w.Sent, tx)
	n := len(w.Sent)
	w.mu.Unlock()
	if w.SendTransactionFn != nil {
		return w.SendTransactionFn(ctx, tx)
	}
	return common.BigToHash(big.NewInt(int64(n))), nil
}

func (w *MockWallet) Events() <-chan outbound.WalletEvent {
	return w.events
}

// Emit delivers an event to the subscriber, as the wallet would.
func (w *MockWallet) Emit(ev outbound.WalletEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("wallet closed")
	}
	w.events <- ev
	return nil
}

// SetChain changes the wallet's chain without emitting anything.
func (w *MockWallet) SetChain(chain any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Chain = chain
}

func (w *MockWallet) SetAccounts(addrs ...common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Addrs = addrs
}

// SentTransactions returns a copy of everything passed to SendTransaction.
func (w *MockWallet) SentTransactions() []outbound.TransactionRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]outbound.TransactionRequest(nil), w.Sent...)
}

func (w *MockWallet) SwitchRequests() []int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int64(nil), w.Switches...)
}

func (w *MockWallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	return nil
}

func (w *MockWallet) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// MockConnector implements outbound.WalletConnector.
type MockConnector struct {
	mu        sync.Mutex
	Name      string
	Wallet    *MockWallet
	ConnectFn func(ctx context.Context) (outbound.Wallet, error)
	CallCount int
}

func (c *MockConnector) ID() string { return c.Name }

func (c *MockConnector) Connect(ctx context.Context) (outbound.Wallet, error) {
	c.mu.Lock()
	c.CallCount++
	c.mu.Unlock()
	if c.ConnectFn != nil {
		return c.ConnectFn(ctx)
	}
	if c.Wallet == nil {
		return nil, errors.New("no wallet configured")
	}
	return c.Wallet, nil
}

func (c *MockConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCount
}

// MockDialer implements outbound.ChainDialer by handing out fake chains.
type MockDialer struct {
	mu     sync.Mutex
	Chains map[int64]*FakeChain
	DialFn func(ctx context.Context, chain entity.Chain) (outbound.ChainReader, error)
	Dials  []int64
}

func (d *MockDialer) Dial(ctx context.Context, chain entity.Chain) (outbound.ChainReader, error) {
	d.mu.Lock()
	d.Dials = append(d.Dials, chain.ChainID)
	fake, ok := d.Chains[chain.ChainID]
	d.mu.Unlock()
	if d.DialFn != nil {
		return d.DialFn(ctx, chain)
	}
	if !ok {
		return nil, errors.New("no fake chain for " + chain.Name)
	}
	return fake, nil
}

func (d *MockDialer) DialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Dials)
}
