package blockchain

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
		wantErr  error
	}{
		{name: "usdc hundred", amount: "100.000000", decimals: 6, want: "100000000"},
		{name: "truncates not rounds", amount: "1.2345679", decimals: 6, want: "1234567"},
		{name: "eth fraction", amount: "0.5", decimals: 18, want: "500000000000000000"},
		{name: "surrounding space", amount: " 2 ", decimals: 18, want: "2000000000000000000"},
		{name: "just below limit", amount: "999999999.99", decimals: 6, want: "999999999990000"},
		{name: "limit", amount: "1000000000", decimals: 6, wantErr: ErrAmountTooLarge},
		{name: "exponent", amount: "1e3", decimals: 6, wantErr: ErrExponentNotation},
		{name: "empty", amount: "", decimals: 6, wantErr: ErrEmptyAmount},
		{name: "negative", amount: "-1", decimals: 6, wantErr: ErrNegativeAmount},
		{name: "garbage", amount: "abc", decimals: 6, wantErr: ErrMalformedAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.amount, tt.decimals)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseUnits(%q) error = %v, want %v", tt.amount, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnits(%q) unexpected error = %v", tt.amount, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseUnits(%q) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestTruncateToDecimals(t *testing.T) {
	tests := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"1.123456789", 6, "1.123456"},
		{"1.12", 6, "1.12"},
		{"42", 6, "42"},
		{"3.99", 0, "3"},
	}
	for _, tt := range tests {
		if got := TruncateToDecimals(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("TruncateToDecimals(%q, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Errorf("FormatUnits = %s, want 1.5", got)
	}
	if got := FormatUnits(nil, 18); got != "0" {
		t.Errorf("FormatUnits(nil) = %s", got)
	}
	if got := FormatUnitsFixed(big.NewInt(1_234_567), 6, 4); got != "1.2345" {
		t.Errorf("FormatUnitsFixed = %s, want 1.2345", got)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	amount, _ := new(big.Int).SetString("123456789012345678", 10)
	back, err := ParseUnits(FormatUnits(amount, 18), 18)
	if err != nil {
		t.Fatal(err)
	}
	if back.Cmp(amount) != 0 {
		t.Errorf("round trip = %s, want %s", back, amount)
	}
}
