package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetWETHGatewayABI returns the gateway that wraps native ETH and deposits it
// in one call.
func GetWETHGatewayABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "alchemist", "type": "address"},
				{"name": "yieldToken", "type": "address"},
				{"name": "amount", "type": "uint256"},
				{"name": "recipient", "type": "address"},
				{"name": "minimumAmountOut", "type": "uint256"}
			],
			"name": "depositUnderlying",
			"outputs": [],
			"stateMutability": "payable",
			"type": "function"
		}
	]`)
}
