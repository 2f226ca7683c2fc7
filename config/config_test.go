package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvNodeEnv, EnvPriceFeedTestnet, EnvPriceFeedMainnet, EnvTestnetURL, EnvPrivateKeyLocal, EnvPrivateKeyTestnet} {
		t.Setenv(key, "")
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "tips.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, NetworkLocalhost, cfg.Network)
	require.Equal(t, uint8(8), cfg.Oracle.Decimals)

	active, err := cfg.Active()
	require.NoError(t, err)
	require.Equal(t, uint64(1337), active.ChainID)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadParsesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tips.toml")
	contents := `Network = "testnet"
DataDir = "/var/lib/tips"
DeploymentsDir = "/srv/deployments"

[oracle]
Decimals = 8
MaxAgeSeconds = 600
ManualAnswer = "1"

[networks.testnet]
ChainID = 11155111
RPCURL = "https://sepolia.example"
PriceFeed = "0x694AA1769357215DE4FAC081bf1f309aDC325306"

[log]
Level = "debug"
File = "/var/log/tips.log"

[server]
ListenAddress = "127.0.0.1:9000"
RateLimitPerSecond = 5
RateLimitBurst = 10
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, NetworkTestnet, cfg.Network)
	require.Equal(t, uint64(600), cfg.Oracle.MaxAgeSeconds)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.ListenAddress)
	require.Equal(t, filepath.Join("/srv/deployments", "testnet", "Tips.json"), cfg.DeploymentPath())
	require.Equal(t, filepath.Join("/var/lib/tips", "testnet", "state"), cfg.StatePath())
	// untouched sections keep their defaults
	require.Equal(t, uint64(1), cfg.Networks.Production.ChainID)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tips.toml")
	require.NoError(t, os.WriteFile(path, []byte("Bogus = 1\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "Bogus")
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvNodeEnv, "testnet")
	t.Setenv(EnvTestnetURL, "https://rpc.sepolia.example")
	t.Setenv(EnvPriceFeedTestnet, "0x1111111111111111111111111111111111111111")
	t.Setenv(EnvPrivateKeyTestnet, "0xabc")

	cfg, err := Load(filepath.Join(t.TempDir(), "tips.toml"))
	require.NoError(t, err)
	require.Equal(t, NetworkTestnet, cfg.Network)
	active, err := cfg.Active()
	require.NoError(t, err)
	require.Equal(t, "https://rpc.sepolia.example", active.RPCURL)
	require.Equal(t, "0x1111111111111111111111111111111111111111", active.PriceFeed)
	require.Equal(t, "0xabc", active.PrivateKey)
	require.Equal(t, "0x1111111111111111111111111111111111111111", cfg.Networks.Localhost.PriceFeed)
}

func TestPrivateKeyNeverPersisted(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPrivateKeyLocal, "0xdeadbeef")
	path := filepath.Join(t.TempDir(), "tips.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0xdeadbeef", cfg.Networks.Localhost.PrivateKey)
	require.NoError(t, cfg.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "deadbeef"))
}

func TestNetworkFromEnv(t *testing.T) {
	cases := map[string]string{
		"production": NetworkProduction,
		"MAINNET":    NetworkProduction,
		"testnet":    NetworkTestnet,
		"test":       NetworkTestnet,
		"":           NetworkLocalhost,
		"dev":        NetworkLocalhost,
	}
	for in, want := range cases {
		require.Equal(t, want, NetworkFromEnv(in), in)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "unknown network", mutate: func(c *Config) { c.Network = "moon" }, want: "unknown network"},
		{name: "bad feed", mutate: func(c *Config) { c.Networks.Localhost.PriceFeed = "nope" }, want: "PriceFeed"},
		{name: "zero feed", mutate: func(c *Config) {
			c.Networks.Localhost.PriceFeed = "0x0000000000000000000000000000000000000000"
		}, want: "PriceFeed"},
		{name: "remote without rpc", mutate: func(c *Config) { c.Network = NetworkProduction }, want: "RPCURL"},
		{name: "bad manual answer", mutate: func(c *Config) { c.Oracle.ManualAnswer = "-4" }, want: "ManualAnswer"},
		{name: "decimals", mutate: func(c *Config) { c.Oracle.Decimals = 80 }, want: "Decimals"},
		{name: "sample", mutate: func(c *Config) { c.Telemetry.Sample = 2 }, want: "Sample"},
		{name: "chain id", mutate: func(c *Config) { c.Networks.Localhost.ChainID = 0 }, want: "ChainID"},
		{name: "backend", mutate: func(c *Config) { c.StateBackend = "rocksdb" }, want: "StateBackend"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
	require.NoError(t, Default().Validate())
}
