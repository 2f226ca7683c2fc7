package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeedDecimals bounds Oracle.Decimals to what aggregator contracts report.
const MaxFeedDecimals = 36

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	active, err := c.Active()
	if err != nil {
		return err
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	switch c.StateBackend {
	case "", "leveldb", "bolt":
	default:
		return fmt.Errorf("StateBackend must be leveldb or bolt, got %q", c.StateBackend)
	}
	if strings.TrimSpace(c.DeploymentsDir) == "" {
		return fmt.Errorf("DeploymentsDir must not be empty")
	}
	if active.ChainID == 0 {
		return fmt.Errorf("networks.%s: ChainID must be set", c.Network)
	}
	if !common.IsHexAddress(active.PriceFeed) || common.HexToAddress(active.PriceFeed) == (common.Address{}) {
		return fmt.Errorf("networks.%s: invalid PriceFeed %q", c.Network, active.PriceFeed)
	}
	if c.Network != NetworkLocalhost && strings.TrimSpace(active.RPCURL) == "" {
		return fmt.Errorf("networks.%s: RPCURL is required", c.Network)
	}
	if c.Oracle.Decimals > MaxFeedDecimals {
		return fmt.Errorf("oracle: Decimals %d exceeds %d", c.Oracle.Decimals, MaxFeedDecimals)
	}
	if strings.TrimSpace(active.RPCURL) == "" {
		if _, err := c.Oracle.ManualValue(); err != nil {
			return err
		}
	}
	if c.Server.RateLimitPerSecond < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("server: rate limits must not be negative")
	}
	if c.Telemetry.Sample < 0 || c.Telemetry.Sample > 1 {
		return fmt.Errorf("telemetry: Sample must be within [0,1]")
	}
	return nil
}

// ManualValue parses ManualAnswer as a positive integer.
func (o OracleConfig) ManualValue() (*big.Int, error) {
	trimmed := strings.TrimSpace(o.ManualAnswer)
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: ManualAnswer must be a positive integer, got %q", o.ManualAnswer)
	}
	return value, nil
}
