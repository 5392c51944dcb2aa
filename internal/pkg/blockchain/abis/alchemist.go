package abis

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// YieldTokenParams mirrors the tuple returned by getYieldTokenParameters.
type YieldTokenParams struct {
	Decimals              uint8
	UnderlyingToken       common.Address
	Adapter               common.Address
	MaximumLoss           *big.Int
	MaximumExpectedValue  *big.Int
	CreditUnlockRate      *big.Int
	ActiveBalance         *big.Int
	HarvestableBalance    *big.Int
	TotalShares           *big.Int
	ExpectedValue         *big.Int
	PendingCredit         *big.Int
	DistributedCredit     *big.Int
	LastDistributionBlock *big.Int
	AccruedWeight         *big.Int
	Enabled               bool
}

// GetAlchemistABI returns the subset of the lending contract the client uses.
func GetAlchemistABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "getSupportedUnderlyingTokens",
			"outputs": [{"name": "", "type": "address[]"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "getSupportedYieldTokens",
			"outputs": [{"name": "", "type": "address[]"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "yieldToken", "type": "address"}],
			"name": "getYieldTokenParameters",
			"outputs": [{
				"components": [
					{"name": "decimals", "type": "uint8"},
					{"name": "underlyingToken", "type": "address"},
					{"name": "adapter", "type": "address"},
					{"name": "maximumLoss", "type": "uint256"},
					{"name": "maximumExpectedValue", "type": "uint256"},
					{"name": "creditUnlockRate", "type": "uint256"},
					{"name": "activeBalance", "type": "uint256"},
					{"name": "harvestableBalance", "type": "uint256"},
					{"name": "totalShares", "type": "uint256"},
					{"name": "expectedValue", "type": "uint256"},
					{"name": "pendingCredit", "type": "uint256"},
					{"name": "distributedCredit", "type": "uint256"},
					{"name": "lastDistributionBlock", "type": "uint256"},
					{"name": "accruedWeight", "type": "uint256"},
					{"name": "enabled", "type": "bool"}
				],
				"name": "params",
				"type": "tuple"
			}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "yieldToken", "type": "address"}
			],
			"name": "positions",
			"outputs": [
				{"name": "shares", "type": "uint256"},
				{"name": "lastAccruedWeight", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "owner", "type": "address"}],
			"name": "accounts",
			"outputs": [
				{"name": "debt", "type": "int256"},
				{"name": "depositedTokens", "type": "address[]"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "minimumCollateralization",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "yieldToken", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "recipient", "type": "address"},
				{"name": "minimumAmountOut", "type": "uint256"}
			],
			"name": "depositUnderlying",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "amount", "type": "uint256"},
				{"name": "recipient", "type": "address"}
			],
			"name": "mint",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "data", "type": "bytes[]"}],
			"name": "multicall",
			"outputs": [{"name": "results", "type": "bytes[]"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
}
