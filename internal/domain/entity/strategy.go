package entity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// YieldStrategy is a yield-bearing token accepted as collateral. It wraps
// exactly one underlying asset.
type YieldStrategy struct {
	Token      common.Address
	Underlying common.Address
	Name       string
	Symbol     string
}

// Label is the human-readable name+symbol pair.
func (s YieldStrategy) Label() string {
	switch {
	case s.Name == "" && s.Symbol == "":
		return s.Token.Hex()
	case s.Symbol == "":
		return s.Name
	default:
		return s.Name + " (" + s.Symbol + ")"
	}
}

// StrategyMapping maps an underlying token address (lower-cased hex, see
// AddressKey) to the ordered yield tokens wrapping it.
type StrategyMapping map[string][]common.Address

// AddressKey is the canonical mapping key for an address.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// Add appends a yield token under its underlying token.
func (m StrategyMapping) Add(underlying, yieldToken common.Address) {
	key := AddressKey(underlying)
	m[key] = append(m[key], yieldToken)
}

// For returns the yield tokens wrapping underlying.
func (m StrategyMapping) For(underlying common.Address) []common.Address {
	return m[AddressKey(underlying)]
}
