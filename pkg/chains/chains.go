package chains

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Chain describes everything the engine needs to know to talk to one
// EVM-compatible network. Adding a chain is a data change, not a code change.
type Chain struct {
	ID               uint64 `yaml:"id"`
	Name             string `yaml:"name"`
	NativeSymbol     string `yaml:"nativeSymbol"`
	NativeDecimals   int32  `yaml:"nativeDecimals"`
	RPCEndpoint      string `yaml:"rpcEndpoint"`
	ExplorerEndpoint string `yaml:"explorerEndpoint"`
	NativeUSDOracle  string `yaml:"nativeUsdOracle"`
	// PoolNetwork is the GeckoTerminal network slug; empty disables pool lookups.
	PoolNetwork string `yaml:"poolNetwork"`
}

// Registry is an ordered table of supported chains. The order matters for the
// deposit locator, which probes explorers chain by chain and accepts the first hit.
type Registry struct {
	order  []uint64
	chains map[uint64]Chain
}

func NewRegistry(chains []Chain) *Registry {
	r := &Registry{
		order:  make([]uint64, 0, len(chains)),
		chains: make(map[uint64]Chain, len(chains)),
	}
	for _, c := range chains {
		if _, ok := r.chains[c.ID]; !ok {
			r.order = append(r.order, c.ID)
		}
		r.chains[c.ID] = c
	}
	return r
}

// DefaultRegistry returns the compiled-in chain table.
func DefaultRegistry() *Registry {
	return NewRegistry([]Chain{
		{
			ID:               8453,
			Name:             "base",
			NativeSymbol:     "ETH",
			NativeDecimals:   18,
			RPCEndpoint:      "https://mainnet.base.org",
			ExplorerEndpoint: "https://api.basescan.org/api",
			NativeUSDOracle:  "coingecko:ethereum",
			PoolNetwork:      "base",
		},
		{
			ID:               534352,
			Name:             "scroll",
			NativeSymbol:     "ETH",
			NativeDecimals:   18,
			RPCEndpoint:      "https://rpc.scroll.io",
			ExplorerEndpoint: "https://api.scrollscan.com/api",
			NativeUSDOracle:  "coingecko:ethereum",
			PoolNetwork:      "scroll",
		},
		{
			ID:               59144,
			Name:             "linea",
			NativeSymbol:     "ETH",
			NativeDecimals:   18,
			RPCEndpoint:      "https://linea.drpc.org",
			ExplorerEndpoint: "https://api.lineascan.build/api",
			NativeUSDOracle:  "coingecko:ethereum",
			PoolNetwork:      "linea",
		},
		{
			ID:               747,
			Name:             "flow-evm",
			NativeSymbol:     "FLOW",
			NativeDecimals:   18,
			RPCEndpoint:      "https://mainnet.evm.nodes.onflow.org",
			ExplorerEndpoint: "https://evm.flowscan.io/api",
			NativeUSDOracle:  "coingecko:flow",
			PoolNetwork:      "flow-evm",
		},
		{
			ID:               1,
			Name:             "ethereum",
			NativeSymbol:     "ETH",
			NativeDecimals:   18,
			RPCEndpoint:      "https://eth.drpc.org",
			ExplorerEndpoint: "https://api.etherscan.io/api",
			NativeUSDOracle:  "coingecko:ethereum",
			PoolNetwork:      "eth",
		},
	})
}

// LoadRegistry reads a YAML chain table from disk. Chains found in the file
// replace or extend the compiled-in defaults, preserving default ordering for
// chains that already exist.
func LoadRegistry(path string) (*Registry, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain registry file: %w", err)
	}
	var fileChains struct {
		Chains []Chain `yaml:"chains"`
	}
	if err := yaml.Unmarshal(contents, &fileChains); err != nil {
		return nil, fmt.Errorf("failed to parse chain registry file: %w", err)
	}

	r := DefaultRegistry()
	for _, c := range fileChains.Chains {
		if c.ID == 0 {
			return nil, fmt.Errorf("chain registry entry missing id: %+v", c)
		}
		if _, ok := r.chains[c.ID]; !ok {
			r.order = append(r.order, c.ID)
		}
		r.chains[c.ID] = c
	}
	return r, nil
}

func (r *Registry) Get(chainID uint64) (Chain, error) {
	c, ok := r.chains[chainID]
	if !ok {
		return Chain{}, fmt.Errorf("unsupported chain %d", chainID)
	}
	return c, nil
}

// Ordered returns all chains in registry order.
func (r *Registry) Ordered() []Chain {
	out := make([]Chain, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.chains[id])
	}
	return out
}
