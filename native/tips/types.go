package tips

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultFeeRate is the protocol fee applied to every tip, expressed in
	// FeeScale units (10/1000 = 1%).
	DefaultFeeRate uint64 = 10
	// FeeScale is the fixed-point denominator of the fee rate (per-mille).
	FeeScale uint64 = 1000
	// InitializerVersion is the version stamped by Initialize. Storage written
	// by an initializer is never rewritten by later implementation versions.
	InitializerVersion uint64 = 1
	// NativeDecimals is the number of decimals of the native asset.
	NativeDecimals = 18
)

// DefaultAdminRole administers every role, including itself.
var DefaultAdminRole = common.Hash{}

// Config is the durable configuration written once by Initialize.
type Config struct {
	InitializedVersion    uint64
	ImplementationVersion uint64
	PriceFeed             common.Address
	FeeRate               uint64
	Admin                 common.Address
}

// Initialized reports whether the initializer has completed.
func (c *Config) Initialized() bool {
	return c != nil && c.InitializedVersion > 0
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Receipt summarises a completed tip.
type Receipt struct {
	Sender         common.Address
	Recipient      common.Address
	Gross          *big.Int
	Fee            *big.Int
	Net            *big.Int
	ReferenceValue *big.Int
	Rate           ConversionRate
	Sequence       uint64
}

// Withdrawal summarises a completed fee withdrawal.
type Withdrawal struct {
	Caller      common.Address
	Destination common.Address
	Amount      *big.Int
	Sequence    uint64
}
