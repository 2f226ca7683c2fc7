package tips

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// aggregatorABI is the read-only subset of the AggregatorV3 interface.
const aggregatorABI = `[
  {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"latestRoundData","outputs":[
    {"internalType":"uint80","name":"roundId","type":"uint80"},
    {"internalType":"int256","name":"answer","type":"int256"},
    {"internalType":"uint256","name":"startedAt","type":"uint256"},
    {"internalType":"uint256","name":"updatedAt","type":"uint256"},
    {"internalType":"uint80","name":"answeredInRound","type":"uint80"}
  ],"stateMutability":"view","type":"function"}
]`

// AggregatorABI is the parsed aggregator interface.
var AggregatorABI = mustParseABI(aggregatorABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("tips: parse aggregator abi: %v", err))
	}
	return parsed
}

// EVMFeed reads aggregator contracts over Ethereum JSON-RPC.
type EVMFeed struct {
	caller ethereum.ContractCaller
}

// NewEVMFeed constructs a feed reader on top of caller.
func NewEVMFeed(caller ethereum.ContractCaller) *EVMFeed {
	return &EVMFeed{caller: caller}
}

// DialEVMFeed connects to the JSON-RPC endpoint and returns a feed reader
// together with the client so callers can close it.
func DialEVMFeed(ctx context.Context, endpoint string) (*EVMFeed, *ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, nil, fmt.Errorf("evm endpoint required")
	}
	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", trimmed, err)
	}
	return NewEVMFeed(client), client, nil
}

func (f *EVMFeed) call(ctx context.Context, feed common.Address, method string) ([]interface{}, error) {
	if f == nil || f.caller == nil {
		return nil, fmt.Errorf("evm feed not initialised")
	}
	data, err := AggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, feed.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result (no contract?)", method, feed.Hex())
	}
	values, err := AggregatorABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return values, nil
}

// LatestAnswer implements PriceFeed with a single latestRoundData call.
func (f *EVMFeed) LatestAnswer(ctx context.Context, feed common.Address) (Answer, error) {
	values, err := f.call(ctx, feed, "latestRoundData")
	if err != nil {
		return Answer{}, err
	}
	if len(values) != 5 {
		return Answer{}, fmt.Errorf("decode latestRoundData: expected 5 values, got %d", len(values))
	}
	roundID, ok1 := values[0].(*big.Int)
	answer, ok2 := values[1].(*big.Int)
	updatedAt, ok3 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return Answer{}, fmt.Errorf("decode latestRoundData: unexpected value types")
	}
	var ts time.Time
	if updatedAt.Sign() > 0 && updatedAt.IsInt64() {
		ts = time.Unix(updatedAt.Int64(), 0)
	}
	return Answer{RoundID: roundID, Value: answer, UpdatedAt: ts}, nil
}

// Decimals returns the precision reported by the aggregator.
func (f *EVMFeed) Decimals(ctx context.Context, feed common.Address) (uint8, error) {
	values, err := f.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("decode decimals: expected 1 value, got %d", len(values))
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decode decimals: unexpected type %T", values[0])
	}
	return decimals, nil
}
