package multicall

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/ports/outbound"
)

// DirectCaller implements outbound.Multicaller with one eth_call per target.
// It is the fallback for chains or forks where Multicall3 is not deployed.
type DirectCaller struct {
	caller ContractCaller
}

func NewDirectCaller(caller ContractCaller) *DirectCaller {
	return &DirectCaller{caller: caller}
}

func (c *DirectCaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	results := make([]outbound.Result, len(calls))
	for i, call := range calls {
		target := call.Target
		data, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: call.CallData}, blockNumber)
		if err != nil {
			if !call.AllowFailure {
				return nil, fmt.Errorf("direct call to %s failed: %w", call.Target.Hex(), err)
			}
			results[i] = outbound.Result{Success: false}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: data}
	}
	return results, nil
}

// Address returns a zero address since DirectCaller doesn't use a contract.
func (c *DirectCaller) Address() common.Address {
	return common.Address{}
}
