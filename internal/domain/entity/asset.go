package entity

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeSymbol is the catalog symbol for a chain's native ETH. Deposits of it
// are routed through the wrapping gateway and accounted as WETH.
const NativeSymbol = "ETH"

// LoanDecimals is the precision of the synthetic debt tokens.
const LoanDecimals = 18

// AssetFamily groups underlying assets by the synthetic they borrow against.
type AssetFamily int

const (
	FamilyUSD AssetFamily = iota
	FamilyETH
)

// UnderlyingAsset is a base token users deposit as collateral.
type UnderlyingAsset struct {
	Symbol   string
	Decimals int32
	Icon     string
	Family   AssetFamily
	// NonStandardApproval marks tokens whose approve reverts unless the
	// current allowance is zero.
	NonStandardApproval bool
	// Native is set on the ETH entry, which shares WETH's addresses.
	Native    bool
	Addresses map[int64]common.Address
}

// AddressOn returns the token contract on chainID.
func (a UnderlyingAsset) AddressOn(chainID int64) (common.Address, bool) {
	addr, ok := a.Addresses[chainID]
	return addr, ok
}

// LoanSymbol is the synthetic borrowed against this asset.
func (a UnderlyingAsset) LoanSymbol() string {
	if a.Family == FamilyETH {
		return "alETH"
	}
	return "alUSD"
}

var catalog = []UnderlyingAsset{
	{
		Symbol:   "DAI",
		Decimals: 18,
		Icon:     "/icons/dai.svg",
		Family:   FamilyUSD,
		Addresses: map[int64]common.Address{
			ChainEthereum: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"),
			ChainOptimism: common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
			ChainFantom:   common.HexToAddress("0x8D11eC38a3EB5E956B052f67Da8Bdc9bef8Abf3E"),
			ChainArbitrum: common.HexToAddress("0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1"),
		},
	},
	{
		Symbol:   "USDC",
		Decimals: 6,
		Icon:     "/icons/usdc.svg",
		Family:   FamilyUSD,
		Addresses: map[int64]common.Address{
			ChainEthereum: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
			ChainOptimism: common.HexToAddress("0x7F5c764cBc14f9669B88837ca1490cCa17c31607"),
			ChainFantom:   common.HexToAddress("0x04068DA6C83AFCFA0e13ba15A6696662335D5B75"),
			ChainArbitrum: common.HexToAddress("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8"),
		},
	},
	{
		Symbol:              "USDT",
		Decimals:            6,
		Icon:                "/icons/usdt.svg",
		Family:              FamilyUSD,
		NonStandardApproval: true,
		Addresses: map[int64]common.Address{
			ChainEthereum: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
			ChainOptimism: common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"),
			ChainFantom:   common.HexToAddress("0x049d68029688eAbF473097a2fC38ef61633A3C7A"),
			ChainArbitrum: common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"),
		},
	},
	{
		Symbol:   "WETH",
		Decimals: 18,
		Icon:     "/icons/weth.svg",
		Family:   FamilyETH,
		Addresses: map[int64]common.Address{
			ChainEthereum: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			ChainOptimism: common.HexToAddress("0x4200000000000000000000000000000000000006"),
			ChainFantom:   common.HexToAddress("0x74b23882a30290451A17c44f4F05243b6b58C76d"),
			ChainArbitrum: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"),
		},
	},
}

// Catalog returns the static underlying-asset catalog in display order.
func Catalog() []UnderlyingAsset {
	out := make([]UnderlyingAsset, len(catalog))
	copy(out, catalog)
	return out
}

// LookupAsset finds a catalog entry by symbol (case-insensitive). "ETH"
// resolves to the native entry backed by WETH's addresses.
func LookupAsset(symbol string) (UnderlyingAsset, bool) {
	if strings.EqualFold(symbol, NativeSymbol) {
		native := wethAsset()
		native.Symbol = NativeSymbol
		native.Icon = "/icons/eth.svg"
		native.Native = true
		return native, true
	}
	for _, a := range catalog {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return UnderlyingAsset{}, false
}

// AssetByAddress finds the catalog entry deployed at addr on chainID.
func AssetByAddress(chainID int64, addr common.Address) (UnderlyingAsset, bool) {
	for _, a := range catalog {
		if got, ok := a.AddressOn(chainID); ok && got == addr {
			return a, true
		}
	}
	return UnderlyingAsset{}, false
}

func wethAsset() UnderlyingAsset {
	return catalog[len(catalog)-1]
}
