// Package shared provides contract-call helpers and instrumentation shared by
// the application services.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/pkg/blockchain/abis"
	"github.com/archon-research/lendkit/internal/pkg/blockchain/multicall"
	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// MulticallerFactory builds a read batcher over a chain connection.
type MulticallerFactory func(caller multicall.ContractCaller, logger *slog.Logger) (outbound.Multicaller, error)

// DefaultMulticaller batches through Multicall3, degrading to direct calls.
func DefaultMulticaller(caller multicall.ContractCaller, logger *slog.Logger) (outbound.Multicaller, error) {
	return multicall.NewFallback(caller, logger)
}

// Contracts bundles the parsed ABIs of the contracts the services read.
type Contracts struct {
	Alchemist *abi.ABI
	ERC20     *abi.ABI
}

func LoadContracts() (*Contracts, error) {
	alchemist, err := abis.GetAlchemistABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load lending contract ABI: %w", err)
	}
	erc20, err := abis.GetERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load ERC20 ABI: %w", err)
	}
	return &Contracts{Alchemist: alchemist, ERC20: erc20}, nil
}

// CallView performs a single eth_call and unpacks the outputs of method.
func CallView(ctx context.Context, caller multicall.ContractCaller, contract *abi.ABI, target common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	result, err := caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, target.Hex(), err)
	}
	out, err := contract.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s from %s: %w", method, target.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s returned no data", method, target.Hex())
	}
	return out, nil
}

// CallAddresses calls a view returning address[].
func CallAddresses(ctx context.Context, caller multicall.ContractCaller, contract *abi.ABI, target common.Address, method string) ([]common.Address, error) {
	out, err := CallView(ctx, caller, contract, target, method)
	if err != nil {
		return nil, err
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want []common.Address", method, out[0])
	}
	return addrs, nil
}

// CallBigInt calls a view whose first output is a uint256/int256.
func CallBigInt(ctx context.Context, caller multicall.ContractCaller, contract *abi.ABI, target common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := CallView(ctx, caller, contract, target, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, want *big.Int", method, out[0])
	}
	return n, nil
}

// UnpackYieldTokenParams decodes getYieldTokenParameters return data.
func (c *Contracts) UnpackYieldTokenParams(data []byte) (abis.YieldTokenParams, error) {
	out, err := c.Alchemist.Unpack("getYieldTokenParameters", data)
	if err != nil {
		return abis.YieldTokenParams{}, fmt.Errorf("failed to unpack yield token parameters: %w", err)
	}
	if len(out) == 0 {
		return abis.YieldTokenParams{}, fmt.Errorf("empty yield token parameters")
	}
	params, ok := abi.ConvertType(out[0], new(abis.YieldTokenParams)).(*abis.YieldTokenParams)
	if !ok {
		return abis.YieldTokenParams{}, fmt.Errorf("unexpected yield token parameters type %T", out[0])
	}
	return *params, nil
}

// YieldTokenParams batches getYieldTokenParameters for tokens on the lending
// contract. A nil entry marks a token whose parameters could not be read.
func (c *Contracts) YieldTokenParams(ctx context.Context, mc outbound.Multicaller, alchemist common.Address, tokens []common.Address) ([]*abis.YieldTokenParams, error) {
	calls := make([]outbound.Call, 0, len(tokens))
	for _, token := range tokens {
		data, err := c.Alchemist.Pack("getYieldTokenParameters", token)
		if err != nil {
			return nil, fmt.Errorf("failed to pack getYieldTokenParameters: %w", err)
		}
		calls = append(calls, outbound.Call{Target: alchemist, AllowFailure: true, CallData: data})
	}

	results, err := mc.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("getYieldTokenParameters batch: %w", err)
	}
	if len(results) != len(tokens) {
		return nil, fmt.Errorf("getYieldTokenParameters batch returned %d results for %d tokens", len(results), len(tokens))
	}

	out := make([]*abis.YieldTokenParams, len(tokens))
	for i, r := range results {
		if !r.Success || len(r.ReturnData) == 0 {
			continue
		}
		params, err := c.UnpackYieldTokenParams(r.ReturnData)
		if err != nil {
			continue
		}
		out[i] = &params
	}
	return out, nil
}

// Strings batches a string-returning ERC20 view (symbol, name) across
// tokens. Failed reads are returned as "".
func (c *Contracts) Strings(ctx context.Context, mc outbound.Multicaller, method string, tokens []common.Address) ([]string, error) {
	data, err := c.ERC20.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	calls := make([]outbound.Call, len(tokens))
	for i, token := range tokens {
		calls[i] = outbound.Call{Target: token, AllowFailure: true, CallData: data}
	}

	results, err := mc.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("%s batch: %w", method, err)
	}

	out := make([]string, len(tokens))
	for i := range tokens {
		if i >= len(results) || !results[i].Success || len(results[i].ReturnData) == 0 {
			continue
		}
		var s string
		if err := c.ERC20.UnpackIntoInterface(&s, method, results[i].ReturnData); err == nil {
			out[i] = s
		}
	}
	return out, nil
}
