package chainconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/lendkit/internal/domain/entity"
)

const overrides = `
chains:
  - chain_id: 1
    rpc_urls:
      - " http://localhost:8545 "
  - chain_id: 31337
    name: Anvil
    rpc_urls: [http://localhost:8546]
    contracts:
      alchemist: "0x5C6374a2ac4EBC38DeA0Fc1F8716e5Ea1AdD94dd"
`

func TestDecodeAndApply(t *testing.T) {
	file, err := Decode(strings.NewReader(overrides))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	registry, err := file.Apply(entity.DefaultRegistry())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	mainnet, _ := registry.Get(entity.ChainEthereum)
	if len(mainnet.RPCURLs) != 1 || mainnet.RPCURLs[0] != "http://localhost:8545" {
		t.Errorf("mainnet RPC URLs = %v", mainnet.RPCURLs)
	}
	if !mainnet.SupportsNativeDeposit() {
		t.Error("override must keep built-in contracts")
	}

	anvil, ok := registry.Get(31337)
	if !ok {
		t.Fatal("new chain not registered")
	}
	if anvil.NativeCurrency.Symbol != "ETH" {
		t.Errorf("default native currency = %+v", anvil.NativeCurrency)
	}
	if anvil.Contracts.Alchemist != common.HexToAddress("0x5C6374a2ac4EBC38DeA0Fc1F8716e5Ea1AdD94dd") {
		t.Errorf("alchemist = %s", anvil.Contracts.Alchemist.Hex())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name        string
		doc         string
		errContains string
	}{
		{"bad chain id", "chains:\n  - chain_id: 0\n", "chain_id must be positive"},
		{"bad address", "chains:\n  - chain_id: 5\n    contracts:\n      alchemist: nope\n", "contracts.alchemist"},
		{"bad yaml", "chains: [", "decode chain config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Decode() error = %v, want containing %q", err, tt.errContains)
			}
		})
	}
}

func TestApply_NewChainNeedsAlchemist(t *testing.T) {
	file, err := Decode(strings.NewReader("chains:\n  - chain_id: 5\n    name: Goerli\n    rpc_urls: [http://x]\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := file.Apply(entity.DefaultRegistry()); err == nil {
		t.Error("expected error for a new chain without an alchemist")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	if err := os.WriteFile(path, []byte(overrides), 0o600); err != nil {
		t.Fatal(err)
	}
	file, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(file.Chains) != 2 {
		t.Errorf("chains = %d, want 2", len(file.Chains))
	}
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
	empty, err := Decode(strings.NewReader(""))
	if err != nil || len(empty.Chains) != 0 {
		t.Errorf("Decode(empty) = %+v, %v", empty, err)
	}
}
