package entity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestLookupAsset(t *testing.T) {
	usdt, ok := LookupAsset("usdt")
	if !ok {
		t.Fatal("USDT missing from catalog")
	}
	if !usdt.NonStandardApproval || usdt.Decimals != 6 {
		t.Errorf("USDT = %+v", usdt)
	}

	eth, ok := LookupAsset("ETH")
	if !ok || !eth.Native || eth.Symbol != NativeSymbol {
		t.Fatalf("ETH = %+v, ok=%v", eth, ok)
	}
	weth, _ := LookupAsset("WETH")
	if a, _ := eth.AddressOn(ChainEthereum); a != weth.Addresses[ChainEthereum] {
		t.Error("ETH must share WETH's address")
	}
	if weth.Native {
		t.Error("LookupAsset(ETH) must not mutate the WETH catalog entry")
	}

	if _, ok := LookupAsset("DOGE"); ok {
		t.Error("unexpected catalog hit")
	}
}

func TestLoanSymbol(t *testing.T) {
	tests := map[string]string{"DAI": "alUSD", "USDC": "alUSD", "WETH": "alETH", "ETH": "alETH"}
	for symbol, want := range tests {
		a, _ := LookupAsset(symbol)
		if got := a.LoanSymbol(); got != want {
			t.Errorf("%s.LoanSymbol() = %s, want %s", symbol, got, want)
		}
	}
}

func TestAssetByAddress(t *testing.T) {
	a, ok := AssetByAddress(ChainEthereum, common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"))
	if !ok || a.Symbol != "USDC" {
		t.Errorf("AssetByAddress = %+v, %v", a, ok)
	}
	if _, ok := AssetByAddress(ChainEthereum, common.HexToAddress("0x01")); ok {
		t.Error("unexpected hit for unknown address")
	}
}

func TestCatalog_IsCopy(t *testing.T) {
	c := Catalog()
	c[0].Symbol = "XXX"
	if Catalog()[0].Symbol == "XXX" {
		t.Error("Catalog must return a copy")
	}
}

func TestStrategyMapping(t *testing.T) {
	m := StrategyMapping{}
	underlying := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	y1 := common.HexToAddress("0x01")
	y2 := common.HexToAddress("0x02")
	m.Add(underlying, y1)
	m.Add(underlying, y2)

	if _, ok := m["0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"]; !ok {
		t.Fatalf("mapping keys must be lower-cased, got %v", m)
	}
	got := m.For(underlying)
	if len(got) != 2 || got[0] != y1 || got[1] != y2 {
		t.Errorf("For = %v, want [y1 y2]", got)
	}
}

func TestYieldStrategy_Label(t *testing.T) {
	s := YieldStrategy{Token: common.HexToAddress("0x01"), Name: "Yearn USDC", Symbol: "yvUSDC"}
	if got := s.Label(); got != "Yearn USDC (yvUSDC)" {
		t.Errorf("Label = %q", got)
	}
	if got := (YieldStrategy{Token: common.HexToAddress("0x01")}).Label(); got != common.HexToAddress("0x01").Hex() {
		t.Errorf("Label fallback = %q", got)
	}
}
