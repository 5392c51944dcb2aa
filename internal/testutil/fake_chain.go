package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/lendkit/internal/pkg/blockchain/abis"
	"github.com/archon-research/lendkit/internal/pkg/blockchain/multicall"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// ContractHandler answers one contract method. It receives the decoded
// arguments and returns the values to ABI-encode, or an error to revert.
type ContractHandler func(args []interface{}) ([]interface{}, error)

type handlerKey struct {
	target   common.Address
	selector [4]byte
}

type handler struct {
	method abi.Method
	fn     ContractHandler
}

// CallRecord is one eth_call observed by the fake.
type CallRecord struct {
	Target common.Address
	Method string
}

// FakeChain is an in-memory outbound.ChainReader that dispatches eth_call to
// registered contract handlers, including calls batched through Multicall3.
type FakeChain struct {
	mu        sync.Mutex
	t         *testing.T
	chainID   *big.Int
	handlers  map[handlerKey]handler
	balances  map[common.Address]*big.Int
	receipts  map[common.Hash]*types.Receipt
	calls     []CallRecord
	multicall *abi.ABI
	alchemist *abi.ABI
	erc20     *abi.ABI
	closed    bool

	// AutoMine makes TransactionReceipt report success for unknown hashes.
	AutoMine bool
	// MulticallDisabled makes calls to the Multicall3 address fail.
	MulticallDisabled bool
	// CallErr, when set, fails every eth_call.
	CallErr error
	// BalanceErr, when set, fails every balance query.
	BalanceErr error
}

func NewFakeChain(t *testing.T, chainID int64) *FakeChain {
	t.Helper()
	load := func(get func() (*abi.ABI, error)) *abi.ABI {
		parsed, err := get()
		if err != nil {
			t.Fatalf("loading ABI: %v", err)
		}
		return parsed
	}
	return &FakeChain{
		t:         t,
		chainID:   big.NewInt(chainID),
		handlers:  make(map[handlerKey]handler),
		balances:  make(map[common.Address]*big.Int),
		receipts:  make(map[common.Hash]*types.Receipt),
		multicall: load(abis.GetMulticall3ABI),
		alchemist: load(abis.GetAlchemistABI),
		erc20:     load(abis.GetERC20ABI),
		AutoMine:  true,
	}
}

// OnAlchemist registers a handler for a lending contract method.
func (f *FakeChain) OnAlchemist(target common.Address, method string, fn ContractHandler) {
	f.on(f.alchemist, target, method, fn)
}

// OnERC20 registers a handler for a token method.
func (f *FakeChain) OnERC20(target common.Address, method string, fn ContractHandler) {
	f.on(f.erc20, target, method, fn)
}

func (f *FakeChain) on(contract *abi.ABI, target common.Address, method string, fn ContractHandler) {
	f.t.Helper()
	m, ok := contract.Methods[method]
	if !ok {
		f.t.Fatalf("unknown method %s", method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[handlerKey{target: target, selector: sel}] = handler{method: m, fn: fn}
}

// Returns is a ContractHandler that always answers with values.
func Returns(values ...interface{}) ContractHandler {
	return func([]interface{}) ([]interface{}, error) { return values, nil }
}

// Reverts is a ContractHandler that always fails.
func Reverts(reason string) ContractHandler {
	return func([]interface{}) ([]interface{}, error) { return nil, errors.New("execution reverted: " + reason) }
}

func (f *FakeChain) SetBalance(account common.Address, balance *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = balance
}

func (f *FakeChain) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = receipt
}

// Calls returns the eth_call log, with multicall batches expanded.
func (f *FakeChain) Calls() []CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CallRecord(nil), f.calls...)
}

// CallCount counts observed calls to method.
func (f *FakeChain) CallCount(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *FakeChain) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeChain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.chainID), nil
}

func (f *FakeChain) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return nil, f.BalanceErr
	}
	if b, ok := f.balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	if f.AutoMine {
		return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
	}
	return nil, ethereum.NotFound
}

func (f *FakeChain) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *FakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.CallErr != nil {
		return nil, f.CallErr
	}
	if msg.To == nil {
		return nil, errors.New("contract creation not supported")
	}
	if *msg.To == multicall.Multicall3Address {
		if f.MulticallDisabled {
			return nil, errors.New("no contract code at multicall3 address")
		}
		return f.aggregate3(msg.Data)
	}
	return f.dispatch(*msg.To, msg.Data)
}

func (f *FakeChain) dispatch(target common.Address, data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("calldata too short")
	}
	var sel [4]byte
	copy(sel[:], data[:4])

	f.mu.Lock()
	h, ok := f.handlers[handlerKey{target: target, selector: sel}]
	if ok {
		f.calls = append(f.calls, CallRecord{Target: target, Method: h.method.Name})
	}
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %x on %s", sel, target.Hex())
	}

	args, err := h.method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack %s args: %w", h.method.Name, err)
	}
	out, err := h.fn(args)
	if err != nil {
		return nil, err
	}
	return h.method.Outputs.Pack(out...)
}

func (f *FakeChain) aggregate3(data []byte) ([]byte, error) {
	method := f.multicall.Methods["aggregate3"]
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack aggregate3: %w", err)
	}
	calls := args[0].([]struct {
		Target       common.Address `json:"target"`
		AllowFailure bool           `json:"allowFailure"`
		CallData     []byte         `json:"callData"`
	})
	results := make([]outbound.Result, len(calls))
	for i, c := range calls {
		ret, err := f.dispatch(c.Target, c.CallData)
		if err != nil {
			if !c.AllowFailure {
				return nil, fmt.Errorf("multicall3: call %d failed: %w", i, err)
			}
			results[i] = outbound.Result{Success: false, ReturnData: []byte{}}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: ret}
	}
	return method.Outputs.Pack(results)
}
