// Package blockchain holds chain-agnostic helpers for token amounts.
package blockchain

import "math/big"

// ConvertToDecimalAdjusted scales a base-unit amount down by decimals. The
// result is for display only.
func ConvertToDecimalAdjusted(amount *big.Int, decimals int) *big.Float {
	if amount == nil {
		return big.NewFloat(0)
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	result := new(big.Float).SetInt(amount)
	divisorFloat := new(big.Float).SetInt(divisor)
	return result.Quo(result, divisorFloat)
}

// Pow10 returns 10^n.
func Pow10(n int32) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
