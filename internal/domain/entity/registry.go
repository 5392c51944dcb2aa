package entity

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ChainRegistry is the immutable table of supported networks.
type ChainRegistry struct {
	chains  map[int64]Chain
	primary int64
}

// NewChainRegistry builds a registry. The primary chain must be among chains.
func NewChainRegistry(primary int64, chains ...Chain) (*ChainRegistry, error) {
	r := &ChainRegistry{chains: make(map[int64]Chain, len(chains)), primary: primary}
	for _, c := range chains {
		if _, dup := r.chains[c.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain %d", c.ChainID)
		}
		r.chains[c.ChainID] = c
	}
	if _, ok := r.chains[primary]; !ok {
		return nil, fmt.Errorf("primary chain %d is not registered", primary)
	}
	return r, nil
}

// Get returns the chain with the given ID.
func (r *ChainRegistry) Get(chainID int64) (Chain, bool) {
	c, ok := r.chains[chainID]
	return c, ok
}

// Supports reports whether chainID is registered.
func (r *ChainRegistry) Supports(chainID int64) bool {
	_, ok := r.chains[chainID]
	return ok
}

// Primary returns the designated default chain.
func (r *ChainRegistry) Primary() Chain {
	return r.chains[r.primary]
}

// IDs returns the registered chain IDs in ascending order.
func (r *ChainRegistry) IDs() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// With returns a copy of the registry where the given chains replace or
// extend the existing entries.
func (r *ChainRegistry) With(chains ...Chain) (*ChainRegistry, error) {
	merged := make([]Chain, 0, len(r.chains)+len(chains))
	override := make(map[int64]Chain, len(chains))
	for _, c := range chains {
		override[c.ChainID] = c
	}
	for _, id := range r.IDs() {
		if c, ok := override[id]; ok {
			merged = append(merged, c)
			delete(override, id)
			continue
		}
		merged = append(merged, r.chains[id])
	}
	for _, c := range chains {
		if _, pending := override[c.ChainID]; pending {
			merged = append(merged, c)
		}
	}
	return NewChainRegistry(r.primary, merged...)
}

// DefaultRegistry returns the built-in deployments.
func DefaultRegistry() *ChainRegistry {
	eth := NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}
	r, err := NewChainRegistry(ChainEthereum,
		Chain{
			ChainID:        ChainEthereum,
			Name:           "Ethereum",
			RPCURLs:        []string{"https://eth.llamarpc.com", "https://rpc.ankr.com/eth"},
			ExplorerURL:    "https://etherscan.io/",
			NativeCurrency: eth,
			Contracts: Contracts{
				Alchemist:    common.HexToAddress("0x5C6374a2ac4EBC38DeA0Fc1F8716e5Ea1AdD94dd"),
				AlchemistETH: common.HexToAddress("0x062Bf725dC4cDF947aa79Ca2aaCCD4F385b13b5c"),
				WETHGateway:  common.HexToAddress("0xA22a7ec2d82A471B1DAcC4B37345Cf428E76D67A"),
			},
		},
		Chain{
			ChainID:        ChainOptimism,
			Name:           "Optimism",
			RPCURLs:        []string{"https://mainnet.optimism.io"},
			ExplorerURL:    "https://optimistic.etherscan.io/",
			NativeCurrency: eth,
			Contracts: Contracts{
				Alchemist:    common.HexToAddress("0x10294d57A419C8eb78C648372c5bAA27fD1484af"),
				AlchemistETH: common.HexToAddress("0xe04Bb5B4de60FA2fBa69a93adE13A8B3B569d5B4"),
				WETHGateway:  common.HexToAddress("0xDB3fE4Da32c2A79654D98e5a41B22173a0AF3933"),
			},
		},
		Chain{
			ChainID:        ChainFantom,
			Name:           "Fantom",
			RPCURLs:        []string{"https://rpc.ftm.tools", "https://rpcapi.fantom.network"},
			ExplorerURL:    "https://ftmscan.com/",
			NativeCurrency: NativeCurrency{Name: "Fantom", Symbol: "FTM", Decimals: 18},
			Contracts: Contracts{
				Alchemist: common.HexToAddress("0x76b2E3c5a183970AAAD2A48cF6Ae79E3e16D3A0E"),
			},
		},
		Chain{
			ChainID:        ChainArbitrum,
			Name:           "Arbitrum",
			RPCURLs:        []string{"https://arb1.arbitrum.io/rpc"},
			ExplorerURL:    "https://arbiscan.io/",
			NativeCurrency: eth,
			Contracts: Contracts{
				Alchemist:    common.HexToAddress("0xb46eE2E4165F629b4aBCE04B7Eb4237f951AC66F"),
				AlchemistETH: common.HexToAddress("0x654e16a0b161b150F5d1C8a5ba6E7A7B7760703A"),
			},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in chain registry: %v", err))
	}
	return r
}
