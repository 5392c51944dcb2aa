package abis

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestABIs_Parse(t *testing.T) {
	tests := []struct {
		name    string
		load    func() (*abi.ABI, error)
		methods []string
	}{
		{"erc20", GetERC20ABI, []string{"symbol", "name", "decimals", "balanceOf", "allowance", "approve"}},
		{"alchemist", GetAlchemistABI, []string{
			"getSupportedUnderlyingTokens", "getSupportedYieldTokens", "getYieldTokenParameters",
			"positions", "accounts", "minimumCollateralization", "depositUnderlying", "mint", "multicall",
		}},
		{"weth gateway", GetWETHGatewayABI, []string{"depositUnderlying"}},
		{"multicall3", GetMulticall3ABI, []string{"aggregate3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := tt.load()
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			for _, m := range tt.methods {
				if _, ok := parsed.Methods[m]; !ok {
					t.Errorf("method %s missing", m)
				}
			}
		})
	}
}

func TestYieldTokenParams_RoundTrip(t *testing.T) {
	alchemist, err := GetAlchemistABI()
	if err != nil {
		t.Fatal(err)
	}
	want := YieldTokenParams{
		Decimals:              6,
		UnderlyingToken:       common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Adapter:               common.HexToAddress("0x01"),
		MaximumLoss:           big.NewInt(25),
		MaximumExpectedValue:  big.NewInt(0),
		CreditUnlockRate:      big.NewInt(0),
		ActiveBalance:         big.NewInt(1_000_000),
		HarvestableBalance:    big.NewInt(100_000),
		TotalShares:           big.NewInt(500_000),
		ExpectedValue:         big.NewInt(0),
		PendingCredit:         big.NewInt(0),
		DistributedCredit:     big.NewInt(0),
		LastDistributionBlock: big.NewInt(0),
		AccruedWeight:         big.NewInt(0),
		Enabled:               true,
	}

	data, err := alchemist.Methods["getYieldTokenParameters"].Outputs.Pack(want)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := alchemist.Unpack("getYieldTokenParameters", data)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	got := *abi.ConvertType(out[0], new(YieldTokenParams)).(*YieldTokenParams)
	if got.UnderlyingToken != want.UnderlyingToken || got.TotalShares.Cmp(want.TotalShares) != 0 || !got.Enabled {
		t.Errorf("round trip = %+v", got)
	}
}
