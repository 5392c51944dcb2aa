package blockchain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxInputAmount is the exclusive upper bound on user-entered amounts.
var MaxInputAmount = decimal.New(1, 9)

var (
	ErrEmptyAmount      = errors.New("amount is empty")
	ErrExponentNotation = errors.New("exponent notation is not accepted")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrAmountTooLarge   = errors.New("amount must be below 1e9")
	ErrMalformedAmount  = errors.New("amount is not a decimal number")
)

// TruncateToDecimals cuts the fractional part of amount to at most decimals
// digits. It never rounds.
func TruncateToDecimals(amount string, decimals int32) string {
	amount = strings.TrimSpace(amount)
	integer, fraction, found := strings.Cut(amount, ".")
	if !found || decimals < 0 || int32(len(fraction)) <= decimals {
		return amount
	}
	if decimals == 0 {
		return strings.TrimSpace(integer)
	}
	return strings.TrimSpace(integer) + "." + strings.TrimSpace(fraction)[:decimals]
}

// ParseAmount validates a user-entered decimal string and truncates it to
// decimals.
func ParseAmount(amount string, decimals int32) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	if strings.ContainsAny(amount, "eE") {
		return decimal.Zero, ErrExponentNotation
	}
	d, err := decimal.NewFromString(TruncateToDecimals(amount, decimals))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformedAmount, amount)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	if d.GreaterThanOrEqual(MaxInputAmount) {
		return decimal.Zero, ErrAmountTooLarge
	}
	return d, nil
}

// ParseUnits converts a user-entered decimal string into base units.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	d, err := ParseAmount(amount, decimals)
	if err != nil {
		return nil, err
	}
	return d.Shift(decimals).BigInt(), nil
}

// FormatUnits renders a base-unit amount as a decimal string without
// trailing zeros.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatUnitsFixed renders a base-unit amount with exactly places fractional
// digits, truncating the rest.
func FormatUnitsFixed(amount *big.Int, decimals, places int32) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return decimal.NewFromBigInt(amount, -decimals).Truncate(places).StringFixed(places)
}

// ToDecimal lifts a base-unit amount into an exact decimal.
func ToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}
