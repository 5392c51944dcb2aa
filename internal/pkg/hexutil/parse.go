// Package hexutil provides utilities for parsing Ethereum hex-encoded values.
//
// This package is intentionally placed in internal/pkg to allow imports from
// both adapters and services without violating hexagonal architecture principles.
package hexutil

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ParseInt64 parses a hex-encoded string to int64.
// Handles both "0x" prefixed and non-prefixed hex strings.
func ParseInt64(hexNum string) (int64, error) {
	hexNum = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(hexNum), "0x"), "0X")
	return strconv.ParseInt(hexNum, 16, 64)
}

// NormalizeChainID converts a chain id as reported by a wallet into int64.
// Wallets report it as a JSON number on some platforms and as a "0x" hex
// string on others; decimal strings are accepted too.
func NormalizeChainID(v any) (int64, error) {
	switch id := v.(type) {
	case int:
		return checkPositive(int64(id))
	case int32:
		return checkPositive(int64(id))
	case int64:
		return checkPositive(id)
	case uint64:
		if id > math.MaxInt64 {
			return 0, fmt.Errorf("chain id %d overflows int64", id)
		}
		return checkPositive(int64(id))
	case float64:
		if id != math.Trunc(id) || id > math.MaxInt64 {
			return 0, fmt.Errorf("chain id %v is not an integer", id)
		}
		return checkPositive(int64(id))
	case *big.Int:
		if id == nil || !id.IsInt64() {
			return 0, fmt.Errorf("chain id %v out of range", id)
		}
		return checkPositive(id.Int64())
	case json.Number:
		return NormalizeChainID(string(id))
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(id, &decoded); err != nil {
			return 0, fmt.Errorf("decoding chain id: %w", err)
		}
		return NormalizeChainID(decoded)
	case string:
		s := strings.TrimSpace(id)
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			n, err := ParseInt64(s)
			if err != nil {
				return 0, fmt.Errorf("parsing hex chain id %q: %w", id, err)
			}
			return checkPositive(n)
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing chain id %q: %w", id, err)
		}
		return checkPositive(n)
	default:
		return 0, fmt.Errorf("unsupported chain id type %T", v)
	}
}

// EncodeChainID renders a chain id the way wallet_* methods expect it.
func EncodeChainID(id int64) string {
	return "0x" + strconv.FormatInt(id, 16)
}

func checkPositive(n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("chain id must be positive, got %d", n)
	}
	return n, nil
}
