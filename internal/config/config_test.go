package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"lendingScope/internal/model"
)

const forkYAML = `
deployments:
  - network: arbitrum
    name: Lodestar
    slug: lodestar
    comptroller: "0xA86DD95c210dd186Fa7639F93E4177E97d057576"
    units_per_year: 31536000
    rate_basis: timestamp
    reward_basis: timestamp
    native_token:
      address: "0x0000000000000000000000000000000000000000"
      name: Ether
      symbol: ETH
      decimals: 18
    native_market: "0x2193c45244AF12C280941281c8aa67dD08be0a64"
    pricing: oracle-native
    native_usd_feed: "0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612"
    fee_components:
      - name: treasury
        fraction: "0.02"
    oracle_overrides:
      - market: "0x2193c45244AF12C280941281c8aa67dD08be0a64"
        from_block: 100
        to_block: 200
        price_usd: "1800"
`

func TestParseDeployments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.ParseDeployments([]byte(forkYAML)))

	d, err := r.Lookup(model.NetworkArbitrum, "LODESTAR")
	require.NoError(t, err)
	assert.Equal(t, "0xa86dd95c210dd186fa7639f93e4177e97d057576", d.Comptroller)
	assert.Equal(t, model.RateBasisTimestamp, d.RateBasis)
	assert.Equal(t, PricingOracleNative, d.Pricing)
	assert.Equal(t, "0x639fe6ab55c921f74e7fac1ee960c0b6293ba612", d.NativeUSDFeed)
	require.Len(t, d.FeeComponents, 1)
	assert.Equal(t, "0.02", d.FeeComponents[0].Fraction.String())
	require.Len(t, d.OracleOverrides, 1)
	assert.Equal(t, uint64(200), d.OracleOverrides[0].ToBlock)
	assert.True(t, d.IsNativeMarket("0x2193C45244AF12C280941281C8AA67DD08BE0A64"))
}

func TestParseDeploymentsRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"native pricing without feed": `
deployments:
  - {network: mainnet, slug: x, comptroller: "0x01", units_per_year: 1, rate_basis: block, reward_basis: block, pricing: oracle-native}`,
		"unknown pricing": `
deployments:
  - {network: mainnet, slug: x, comptroller: "0x01", units_per_year: 1, rate_basis: block, reward_basis: block, pricing: twap}`,
		"missing comptroller": `
deployments:
  - {network: mainnet, slug: x, units_per_year: 1, rate_basis: block, reward_basis: block}`,
		"fee out of range": `
deployments:
  - {network: mainnet, slug: x, comptroller: "0x01", units_per_year: 1, rate_basis: block, reward_basis: block, fee_components: [{name: a, fraction: "1.5"}]}`,
		"inverted override": `
deployments:
  - {network: mainnet, slug: x, comptroller: "0x01", units_per_year: 1, rate_basis: block, reward_basis: block, oracle_overrides: [{market: "0x02", from_block: 9, to_block: 3, price_usd: "1"}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, NewRegistry().ParseDeployments([]byte(doc)))
		})
	}
}

func TestResolveUnknownDeployment(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	d := NewRegistry().Resolve("mainnet", "aave-v9", zap.New(core))

	assert.True(t, d.IsZero())
	assert.Equal(t, 1, logs.Len())

	_, err := NewRegistry().Lookup(model.NetworkMainnet, "aave-v9")
	assert.True(t, errors.Is(err, ErrUnknownDeployment))
}

func TestSelectorLoadsDeploymentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deployments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(forkYAML), 0o644))

	d, err := Selector{Network: "arbitrum", Protocol: "lodestar", Deployments: path}.Deployment(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "Lodestar", d.Name)

	builtin, err := Selector{Network: "bsc", Protocol: "venus"}.Deployment(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, uint64(10512000), builtin.UnitsPerYear)
}

func TestLoadDefaultsAndFlags(t *testing.T) {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("market", "", "")
	require.NoError(t, flags.Parse([]string{"--rpc", "http://node:8545", "--market", " 0x01, ,0x02 "}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, []string{"0x01", "0x02"}, cfg.Markets)
	assert.Equal(t, uint64(2000), cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, "compound-v2", cfg.Protocol)
}

func TestLoadProcessFromEnv(t *testing.T) {
	t.Setenv("INDEXER_PG_DSN", "postgres://localhost/lending")
	t.Setenv("INDEXER_PROTOCOL", "venus")
	t.Setenv("INDEXER_NETWORK", "bsc")

	cfg, err := LoadProcess("", nil)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/lending", cfg.PGDSN)
	assert.Equal(t, 100, cfg.FlushBlocks)
	assert.Equal(t, "process:bsc:venus", cfg.StateName)
}

func TestParseStringMap(t *testing.T) {
	got := parseStringMap("0xaa=Mint, 0xbb = Redeem,broken,=x")
	assert.Equal(t, map[string]string{"0xaa": "Mint", "0xbb": "Redeem"}, got)
}
