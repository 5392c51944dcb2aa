package entity

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionDecimals is the fixed-point scale of shares and accrued weight.
const PositionDecimals = 18

// Position is the on-chain state of a user's deposit in one yield token.
// It is a read-only projection and is never cached.
type Position struct {
	Owner             common.Address
	YieldToken        common.Address
	Shares            *big.Int
	LastAccruedWeight *big.Int
}

// ZeroPosition is returned when a position cannot be read.
func ZeroPosition(owner, yieldToken common.Address) Position {
	return Position{
		Owner:             owner,
		YieldToken:        yieldToken,
		Shares:            new(big.Int),
		LastAccruedWeight: new(big.Int),
	}
}

// IsZero reports whether the position holds no shares.
func (p Position) IsZero() bool {
	return p.Shares == nil || p.Shares.Sign() == 0
}

// TokenInfo is a user's balance of an asset and the allowance granted to the
// lending contract that accepts it.
type TokenInfo struct {
	Symbol    string
	Decimals  int32
	Balance   *big.Int
	Allowance *big.Int
	Native    bool
}
