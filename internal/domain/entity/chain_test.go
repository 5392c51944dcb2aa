package entity

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewChain(t *testing.T) {
	alchemist := Contracts{Alchemist: common.HexToAddress("0x01")}
	rpc := []string{"http://localhost:8545"}

	tests := []struct {
		name        string
		chainID     int64
		chainName   string
		rpcURLs     []string
		contracts   Contracts
		wantErr     bool
		errContains string
	}{
		{name: "valid chain", chainID: 1, chainName: "Ethereum", rpcURLs: rpc, contracts: alchemist},
		{name: "zero chainID", chainID: 0, chainName: "Ethereum", rpcURLs: rpc, contracts: alchemist, wantErr: true, errContains: "chainID must be positive"},
		{name: "negative chainID", chainID: -1, chainName: "Ethereum", rpcURLs: rpc, contracts: alchemist, wantErr: true, errContains: "chainID must be positive"},
		{name: "empty name", chainID: 1, chainName: " ", rpcURLs: rpc, contracts: alchemist, wantErr: true, errContains: "name must not be empty"},
		{name: "no rpc", chainID: 1, chainName: "Ethereum", contracts: alchemist, wantErr: true, errContains: "RPC URL"},
		{name: "no alchemist", chainID: 1, chainName: "Ethereum", rpcURLs: rpc, wantErr: true, errContains: "alchemist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, err := NewChain(tt.chainID, tt.chainName, tt.rpcURLs, NativeCurrency{Symbol: "ETH", Decimals: 18}, tt.contracts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewChain() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("NewChain() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewChain() unexpected error = %v", err)
			}
			if chain.ChainID != tt.chainID || chain.Name != tt.chainName {
				t.Errorf("NewChain() = %+v", chain)
			}
		})
	}
}

func TestChain_AlchemistFor(t *testing.T) {
	registry := DefaultRegistry()
	mainnet, _ := registry.Get(ChainEthereum)
	fantom, _ := registry.Get(ChainFantom)

	weth, _ := LookupAsset("WETH")
	usdc, _ := LookupAsset("USDC")
	native, _ := LookupAsset(NativeSymbol)

	wethMainnet, _ := weth.AddressOn(ChainEthereum)
	usdcMainnet, _ := usdc.AddressOn(ChainEthereum)

	if got := mainnet.AlchemistFor(wethMainnet); got != mainnet.Contracts.AlchemistETH {
		t.Errorf("AlchemistFor(WETH) = %s, want ETH alchemist", got.Hex())
	}
	if got := mainnet.AlchemistFor(usdcMainnet); got != mainnet.Contracts.Alchemist {
		t.Errorf("AlchemistFor(USDC) = %s, want primary alchemist", got.Hex())
	}
	if got, err := mainnet.AlchemistForAsset(native); err != nil || got != mainnet.Contracts.AlchemistETH {
		t.Errorf("AlchemistForAsset(ETH) = %s, %v; want ETH alchemist", got.Hex(), err)
	}

	wethFantom, _ := weth.AddressOn(ChainFantom)
	if got := fantom.AlchemistFor(wethFantom); got != fantom.Contracts.Alchemist {
		t.Errorf("Fantom has no ETH alchemist; AlchemistFor(WETH) = %s", got.Hex())
	}
	if fantom.SupportsNativeDeposit() {
		t.Error("Fantom must not support native deposits")
	}
	if !mainnet.SupportsNativeDeposit() {
		t.Error("mainnet must support native deposits")
	}
	if got := len(fantom.LendingContracts()); got != 1 {
		t.Errorf("Fantom lending contracts = %d, want 1", got)
	}
	if got := len(mainnet.LendingContracts()); got != 2 {
		t.Errorf("mainnet lending contracts = %d, want 2", got)
	}
}

func TestChain_AddChainParams(t *testing.T) {
	mainnet, _ := DefaultRegistry().Get(ChainEthereum)
	params := mainnet.AddChainParams()
	if params.ChainID != ChainEthereum || params.ChainName != "Ethereum" {
		t.Errorf("params = %+v", params)
	}
	if len(params.RPCURLs) == 0 || len(params.BlockExplorerURLs) != 1 {
		t.Errorf("params urls = %v / %v", params.RPCURLs, params.BlockExplorerURLs)
	}
	params.RPCURLs[0] = "mutated"
	if mainnet.RPCURLs[0] == "mutated" {
		t.Error("AddChainParams must copy RPC URLs")
	}
}

func TestChainRegistry(t *testing.T) {
	r := DefaultRegistry()
	if r.Primary().ChainID != ChainEthereum {
		t.Errorf("Primary = %d, want %d", r.Primary().ChainID, ChainEthereum)
	}
	if !r.Supports(ChainArbitrum) || r.Supports(9999) {
		t.Error("Supports returned wrong answer")
	}
	ids := r.IDs()
	want := []int64{ChainEthereum, ChainOptimism, ChainFantom, ChainArbitrum}
	if len(ids) != len(want) {
		t.Fatalf("IDs = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestNewChainRegistry_Errors(t *testing.T) {
	c := Chain{ChainID: 5, Name: "x"}
	if _, err := NewChainRegistry(1, c); err == nil {
		t.Error("expected error for missing primary")
	}
	if _, err := NewChainRegistry(5, c, c); err == nil {
		t.Error("expected error for duplicate chain")
	}
}

func TestChainRegistry_With(t *testing.T) {
	base := DefaultRegistry()
	mainnet, _ := base.Get(ChainEthereum)
	mainnet.RPCURLs = []string{"http://localhost:8545"}
	local := Chain{ChainID: 31337, Name: "Local", RPCURLs: []string{"http://localhost:8546"}, Contracts: Contracts{Alchemist: common.HexToAddress("0x02")}}

	r, err := base.With(mainnet, local)
	if err != nil {
		t.Fatalf("With: %v", err)
	}
	got, _ := r.Get(ChainEthereum)
	if got.RPCURLs[0] != "http://localhost:8545" {
		t.Errorf("override not applied: %v", got.RPCURLs)
	}
	if !r.Supports(31337) {
		t.Error("new chain not added")
	}
	if orig, _ := base.Get(ChainEthereum); orig.RPCURLs[0] == "http://localhost:8545" {
		t.Error("With must not mutate the original registry")
	}
}
