// Package entity contains the core domain entities of the lending client.
// These entities represent the fundamental business objects and have no
// dependencies beyond go-ethereum's address type.
package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Supported chain IDs.
const (
	ChainEthereum int64 = 1
	ChainOptimism int64 = 10
	ChainFantom   int64 = 250
	ChainArbitrum int64 = 42161
)

// NativeCurrency describes a chain's gas token.
type NativeCurrency struct {
	Name     string
	Symbol   string
	Decimals int
}

// Contracts holds the protocol deployments on one chain. AlchemistETH and
// WETHGateway are zero on chains where they are not deployed.
type Contracts struct {
	Alchemist    common.Address
	AlchemistETH common.Address
	WETHGateway  common.Address
}

// Chain represents a supported blockchain network.
type Chain struct {
	ChainID        int64
	Name           string
	RPCURLs        []string
	ExplorerURL    string
	NativeCurrency NativeCurrency
	Contracts      Contracts
}

// NewChain creates a new Chain entity with validation.
func NewChain(chainID int64, name string, rpcURLs []string, native NativeCurrency, contracts Contracts) (*Chain, error) {
	if chainID <= 0 {
		return nil, fmt.Errorf("chainID must be positive, got %d", chainID)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("name must not be empty")
	}
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("chain %d: at least one RPC URL is required", chainID)
	}
	if contracts.Alchemist == (common.Address{}) {
		return nil, fmt.Errorf("chain %d: alchemist address is required", chainID)
	}
	return &Chain{
		ChainID:        chainID,
		Name:           name,
		RPCURLs:        append([]string(nil), rpcURLs...),
		NativeCurrency: native,
		Contracts:      contracts,
	}, nil
}

// HasAlchemistETH reports whether the native-asset lending contract is deployed.
func (c Chain) HasAlchemistETH() bool {
	return c.Contracts.AlchemistETH != (common.Address{})
}

// SupportsNativeDeposit reports whether native currency can be deposited
// through the wrapping gateway.
func (c Chain) SupportsNativeDeposit() bool {
	return c.Contracts.WETHGateway != (common.Address{}) && c.HasAlchemistETH()
}

// LendingContracts returns the deployed lending contracts, primary first.
func (c Chain) LendingContracts() []common.Address {
	out := []common.Address{c.Contracts.Alchemist}
	if c.HasAlchemistETH() {
		out = append(out, c.Contracts.AlchemistETH)
	}
	return out
}

// AlchemistFor returns the lending contract that accepts the given underlying
// token: the ETH variant for WETH where it exists, the primary otherwise.
func (c Chain) AlchemistFor(underlying common.Address) common.Address {
	if c.HasAlchemistETH() {
		if weth, ok := wethAsset().AddressOn(c.ChainID); ok && weth == underlying {
			return c.Contracts.AlchemistETH
		}
	}
	return c.Contracts.Alchemist
}

// AlchemistForAsset resolves the lending contract for a catalog asset.
func (c Chain) AlchemistForAsset(asset UnderlyingAsset) (common.Address, error) {
	addr, ok := asset.AddressOn(c.ChainID)
	if !ok {
		return common.Address{}, fmt.Errorf("asset %s is not available on %s", asset.Symbol, c.Name)
	}
	return c.AlchemistFor(addr), nil
}

// AddChainParams renders the chain as an EIP-3085 wallet_addEthereumChain entry.
func (c Chain) AddChainParams() AddChainParams {
	var explorers []string
	if c.ExplorerURL != "" {
		explorers = []string{c.ExplorerURL}
	}
	return AddChainParams{
		ChainID:           c.ChainID,
		ChainName:         c.Name,
		NativeCurrency:    c.NativeCurrency,
		RPCURLs:           append([]string(nil), c.RPCURLs...),
		BlockExplorerURLs: explorers,
	}
}

// AddChainParams is what a wallet needs to learn about an unknown chain.
type AddChainParams struct {
	ChainID           int64
	ChainName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string
	BlockExplorerURLs []string
}
