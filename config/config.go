package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Environment variables consulted by Load. They override values read from the
// file so secrets never need to be written to disk.
const (
	EnvNodeEnv           = "NODE_ENV"
	EnvPriceFeedTestnet  = "PRICE_FEED_SEPOLIA"
	EnvPriceFeedMainnet  = "PRICE_FEED_MAINNET"
	EnvTestnetURL        = "SEPOLIA_URL"
	EnvPrivateKeyLocal   = "PRIVATE_KEY_LOCAL"
	EnvPrivateKeyTestnet = "PRIVATE_KEY_TESTNET"
)

// Config is the operator configuration shared by tipsctl and tipsd.
// StateBackend selects the state store: "leveldb" (default) or "bolt".
type Config struct {
	Network            string          `toml:"Network"`
	DataDir            string          `toml:"DataDir"`
	StateBackend       string          `toml:"StateBackend"`
	DeploymentsDir     string          `toml:"DeploymentsDir"`
	SignerKeystorePath string          `toml:"SignerKeystorePath"`
	Oracle             OracleConfig    `toml:"oracle"`
	Networks           Networks        `toml:"networks"`
	Log                LogConfig       `toml:"log"`
	Server             ServerConfig    `toml:"server"`
	Telemetry          TelemetryConfig `toml:"telemetry"`
}

// Default returns the configuration written on first load.
func Default() *Config {
	return &Config{
		Network:        NetworkLocalhost,
		DataDir:        "./tips-data",
		StateBackend:   "leveldb",
		DeploymentsDir: "./deployments",
		Oracle: OracleConfig{
			Decimals:      8,
			MaxAgeSeconds: 3600,
			ManualAnswer:  "200000000000",
		},
		Networks: Networks{
			Localhost: NetworkConfig{
				ChainID:   1337,
				PriceFeed: "0x694AA1769357215DE4FAC081bf1f309aDC325306",
			},
			Testnet: NetworkConfig{
				ChainID:   11155111,
				PriceFeed: "0x694AA1769357215DE4FAC081bf1f309aDC325306",
			},
			Production: NetworkConfig{
				ChainID:   1,
				PriceFeed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
			},
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			ListenAddress:      ":8545",
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			ReadTimeoutSeconds: 10,
		},
		Telemetry: TelemetryConfig{
			Endpoint: "localhost:4318",
			Insecure: true,
			Sample:   0.1,
		},
	}
}

// Load loads the configuration from the given path, creating it with defaults
// when missing, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		if !ok {
			return "", false
		}
		value = strings.TrimSpace(value)
		return value, value != ""
	}
	if env, ok := get(EnvNodeEnv); ok {
		c.Network = NetworkFromEnv(env)
	}
	if v, ok := get(EnvPriceFeedTestnet); ok {
		c.Networks.Testnet.PriceFeed = v
		c.Networks.Localhost.PriceFeed = v
	}
	if v, ok := get(EnvPriceFeedMainnet); ok {
		c.Networks.Production.PriceFeed = v
	}
	if v, ok := get(EnvTestnetURL); ok {
		c.Networks.Testnet.RPCURL = v
	}
	if v, ok := get(EnvPrivateKeyLocal); ok {
		c.Networks.Localhost.PrivateKey = v
	}
	if v, ok := get(EnvPrivateKeyTestnet); ok {
		c.Networks.Testnet.PrivateKey = v
	}
}

// NetworkFromEnv maps a NODE_ENV value onto a network name. Anything other
// than production or testnet/test targets the local network.
func NetworkFromEnv(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case NetworkProduction, "mainnet":
		return NetworkProduction
	case NetworkTestnet, "test", "sepolia":
		return NetworkTestnet
	default:
		return NetworkLocalhost
	}
}

// Active returns the settings of the selected network.
func (c *Config) Active() (NetworkConfig, error) {
	switch c.Network {
	case NetworkLocalhost:
		return c.Networks.Localhost, nil
	case NetworkTestnet:
		return c.Networks.Testnet, nil
	case NetworkProduction:
		return c.Networks.Production, nil
	default:
		return NetworkConfig{}, fmt.Errorf("unknown network %q", c.Network)
	}
}

// DeploymentPath returns the deployment record path for the selected network.
func (c *Config) DeploymentPath() string {
	return filepath.Join(c.DeploymentsDir, c.Network, "Tips.json")
}

// StatePath returns the LevelDB directory for the selected network.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, c.Network, "state")
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	return persist(path, c)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
