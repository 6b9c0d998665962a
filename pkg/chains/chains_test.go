package chains

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Registry(t *testing.T) {
	t.Run("Should carry the compiled-in chains in order", func(t *testing.T) {
		registry := DefaultRegistry()

		ordered := registry.Ordered()
		assert.Equal(t, 5, len(ordered))
		assert.Equal(t, uint64(8453), ordered[0].ID)
		assert.Equal(t, uint64(534352), ordered[1].ID)
		assert.Equal(t, uint64(59144), ordered[2].ID)
		assert.Equal(t, uint64(747), ordered[3].ID)
		assert.Equal(t, uint64(1), ordered[4].ID)

		base, err := registry.Get(8453)
		assert.Nil(t, err)
		assert.Equal(t, "base", base.Name)
		assert.Equal(t, "ETH", base.NativeSymbol)
		assert.Equal(t, int32(18), base.NativeDecimals)

		flow, err := registry.Get(747)
		assert.Nil(t, err)
		assert.Equal(t, "FLOW", flow.NativeSymbol)
	})

	t.Run("Should reject unknown chains", func(t *testing.T) {
		registry := DefaultRegistry()
		_, err := registry.Get(999999)
		assert.NotNil(t, err)
	})

	t.Run("Should merge a YAML file over the defaults", func(t *testing.T) {
		contents := `
chains:
  - id: 8453
    name: base
    nativeSymbol: ETH
    nativeDecimals: 18
    rpcEndpoint: https://base.internal:8545
    explorerEndpoint: https://explorer.internal/api
  - id: 10
    name: optimism
    nativeSymbol: ETH
    nativeDecimals: 18
    rpcEndpoint: https://mainnet.optimism.io
    explorerEndpoint: https://api-optimistic.etherscan.io/api
`
		path := filepath.Join(t.TempDir(), "chains.yaml")
		assert.Nil(t, os.WriteFile(path, []byte(contents), 0644))

		registry, err := LoadRegistry(path)
		assert.Nil(t, err)

		base, err := registry.Get(8453)
		assert.Nil(t, err)
		assert.Equal(t, "https://base.internal:8545", base.RPCEndpoint)

		op, err := registry.Get(10)
		assert.Nil(t, err)
		assert.Equal(t, "optimism", op.Name)

		// Overridden chains keep their position; new chains append.
		ordered := registry.Ordered()
		assert.Equal(t, 6, len(ordered))
		assert.Equal(t, uint64(8453), ordered[0].ID)
		assert.Equal(t, uint64(10), ordered[5].ID)
	})

	t.Run("Should reject registry entries without an id", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "chains.yaml")
		assert.Nil(t, os.WriteFile(path, []byte("chains:\n  - name: nameless\n"), 0644))

		_, err := LoadRegistry(path)
		assert.NotNil(t, err)
	})
}
