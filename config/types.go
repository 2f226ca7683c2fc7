package config

// Network names accepted in Config.Network and NODE_ENV.
const (
	NetworkLocalhost  = "localhost"
	NetworkTestnet    = "testnet"
	NetworkProduction = "production"
)

// NetworkConfig describes one deployment target.
type NetworkConfig struct {
	ChainID uint64 `toml:"ChainID"`
	// RPCURL is the JSON-RPC endpoint hosting the price feed. When empty the
	// manual feed seeded from OracleConfig.ManualAnswer is used instead.
	RPCURL    string `toml:"RPCURL"`
	PriceFeed string `toml:"PriceFeed"`
	// PrivateKey is only ever read from the environment.
	PrivateKey string `toml:"-"`
}

// Networks groups the per-network settings.
type Networks struct {
	Localhost  NetworkConfig `toml:"localhost"`
	Testnet    NetworkConfig `toml:"testnet"`
	Production NetworkConfig `toml:"production"`
}

// OracleConfig controls how price feed answers are read and validated.
type OracleConfig struct {
	Decimals      uint8  `toml:"Decimals"`
	MaxAgeSeconds uint64 `toml:"MaxAgeSeconds"`
	// ManualAnswer seeds the manual feed, scaled by 10^Decimals.
	ManualAnswer string `toml:"ManualAnswer"`
}

// LogConfig selects log destination and verbosity.
type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// ServerConfig configures the query daemon.
type ServerConfig struct {
	ListenAddress      string  `toml:"ListenAddress"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	ReadTimeoutSeconds int     `toml:"ReadTimeoutSeconds"`
}

// TelemetryConfig enables OTLP export of traces and metrics. Headers uses the
// OTEL_EXPORTER_OTLP_HEADERS format: "key=value,key2=value2".
type TelemetryConfig struct {
	Enabled  bool    `toml:"Enabled"`
	Endpoint string  `toml:"Endpoint"`
	Insecure bool    `toml:"Insecure"`
	Sample   float64 `toml:"Sample"`
	Headers  string  `toml:"Headers"`
}
