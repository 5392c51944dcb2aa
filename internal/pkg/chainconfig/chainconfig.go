// Package chainconfig loads YAML overrides for the built-in chain registry.
package chainconfig

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/archon-research/lendkit/internal/domain/entity"
)

// File is the on-disk override document.
type File struct {
	Chains []ChainConfig `yaml:"chains"`
}

// ChainConfig overrides or adds one chain. Empty fields of an override keep
// the built-in value.
type ChainConfig struct {
	ChainID        int64           `yaml:"chain_id"`
	Name           string          `yaml:"name"`
	RPCURLs        []string        `yaml:"rpc_urls"`
	ExplorerURL    string          `yaml:"explorer_url"`
	NativeCurrency *NativeCurrency `yaml:"native_currency"`
	Contracts      ContractsConfig `yaml:"contracts"`
}

type NativeCurrency struct {
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

type ContractsConfig struct {
	Alchemist    string `yaml:"alchemist"`
	AlchemistETH string `yaml:"alchemist_eth"`
	WETHGateway  string `yaml:"weth_gateway"`
}

// Load reads the YAML file at path.
func Load(path string) (File, error) {
	if path == "" {
		return File{}, fmt.Errorf("config path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open chain config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates an override document.
func Decode(r io.Reader) (File, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return File{}, fmt.Errorf("decode chain config: %w", err)
	}
	for i := range file.Chains {
		file.Chains[i].normalize()
		if err := file.Chains[i].validate(); err != nil {
			return File{}, fmt.Errorf("chains[%d]: %w", i, err)
		}
	}
	return file, nil
}

// Apply merges the overrides into base and returns the new registry.
func (f File) Apply(base *entity.ChainRegistry) (*entity.ChainRegistry, error) {
	if len(f.Chains) == 0 {
		return base, nil
	}
	chains := make([]entity.Chain, 0, len(f.Chains))
	for _, cfg := range f.Chains {
		existing, ok := base.Get(cfg.ChainID)
		if ok {
			chains = append(chains, cfg.merge(existing))
			continue
		}
		chain, err := cfg.build()
		if err != nil {
			return nil, err
		}
		chains = append(chains, *chain)
	}
	return base.With(chains...)
}

func (c *ChainConfig) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.ExplorerURL = strings.TrimSpace(c.ExplorerURL)
	urls := c.RPCURLs[:0]
	for _, u := range c.RPCURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	c.RPCURLs = urls
	c.Contracts.Alchemist = strings.TrimSpace(c.Contracts.Alchemist)
	c.Contracts.AlchemistETH = strings.TrimSpace(c.Contracts.AlchemistETH)
	c.Contracts.WETHGateway = strings.TrimSpace(c.Contracts.WETHGateway)
}

func (c ChainConfig) validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive")
	}
	for field, v := range map[string]string{
		"alchemist":     c.Contracts.Alchemist,
		"alchemist_eth": c.Contracts.AlchemistETH,
		"weth_gateway":  c.Contracts.WETHGateway,
	} {
		if v != "" && !common.IsHexAddress(v) {
			return fmt.Errorf("contracts.%s: invalid address %q", field, v)
		}
	}
	return nil
}

func (c ChainConfig) merge(base entity.Chain) entity.Chain {
	if c.Name != "" {
		base.Name = c.Name
	}
	if len(c.RPCURLs) > 0 {
		base.RPCURLs = append([]string(nil), c.RPCURLs...)
	}
	if c.ExplorerURL != "" {
		base.ExplorerURL = c.ExplorerURL
	}
	if c.NativeCurrency != nil {
		base.NativeCurrency = entity.NativeCurrency(*c.NativeCurrency)
	}
	if c.Contracts.Alchemist != "" {
		base.Contracts.Alchemist = common.HexToAddress(c.Contracts.Alchemist)
	}
	if c.Contracts.AlchemistETH != "" {
		base.Contracts.AlchemistETH = common.HexToAddress(c.Contracts.AlchemistETH)
	}
	if c.Contracts.WETHGateway != "" {
		base.Contracts.WETHGateway = common.HexToAddress(c.Contracts.WETHGateway)
	}
	return base
}

func (c ChainConfig) build() (*entity.Chain, error) {
	native := entity.NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}
	if c.NativeCurrency != nil {
		native = entity.NativeCurrency(*c.NativeCurrency)
	}
	contracts := entity.Contracts{}
	if c.Contracts.Alchemist != "" {
		contracts.Alchemist = common.HexToAddress(c.Contracts.Alchemist)
	}
	if c.Contracts.AlchemistETH != "" {
		contracts.AlchemistETH = common.HexToAddress(c.Contracts.AlchemistETH)
	}
	if c.Contracts.WETHGateway != "" {
		contracts.WETHGateway = common.HexToAddress(c.Contracts.WETHGateway)
	}
	chain, err := entity.NewChain(c.ChainID, c.Name, c.RPCURLs, native, contracts)
	if err != nil {
		return nil, fmt.Errorf("chain %d: %w", c.ChainID, err)
	}
	chain.ExplorerURL = c.ExplorerURL
	return chain, nil
}
