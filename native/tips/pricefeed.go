package tips

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultFeedDecimals matches the precision of USD-quoted aggregator feeds.
const DefaultFeedDecimals uint8 = 8

var nativeUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)

// Answer is the latest value published by a price feed.
type Answer struct {
	RoundID   *big.Int
	Value     *big.Int
	UpdatedAt time.Time
}

// PriceFeed reads the latest answer from the oracle deployed at feed.
type PriceFeed interface {
	LatestAnswer(ctx context.Context, feed common.Address) (Answer, error)
}

// ConversionRate is the price of one whole native unit in the reference
// currency, scaled by 10^Decimals.
type ConversionRate struct {
	Feed      common.Address
	RoundID   *big.Int
	Value     *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Convert returns the reference-currency value of amount (in the native
// asset's smallest unit), scaled by 10^Decimals and rounded down.
func (r ConversionRate) Convert(amount *big.Int) *big.Int {
	if amount == nil || r.Value == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, r.Value)
	return out.Quo(out, nativeUnit)
}

// String renders the rate as a decimal number.
func (r ConversionRate) String() string {
	if r.Value == nil {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(r.Decimals)), nil)
	return new(big.Rat).SetFrac(r.Value, scale).FloatString(int(r.Decimals))
}

// PriceFeedAdapter turns raw oracle answers into validated conversion rates.
// Each call queries the feed exactly once; nothing is cached or retried.
type PriceFeedAdapter struct {
	feed     PriceFeed
	decimals uint8
	maxAge   time.Duration
	nowFn    func() time.Time
}

// NewPriceFeedAdapter wraps feed. Answers older than maxAge are rejected; a
// zero maxAge disables the staleness check.
func NewPriceFeedAdapter(feed PriceFeed, decimals uint8, maxAge time.Duration) *PriceFeedAdapter {
	return &PriceFeedAdapter{feed: feed, decimals: decimals, maxAge: maxAge, nowFn: time.Now}
}

// SetNowFunc overrides the time source used for deterministic testing.
func (a *PriceFeedAdapter) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	a.nowFn = now
}

// Decimals returns the precision of the rates produced by the adapter.
func (a *PriceFeedAdapter) Decimals() uint8 { return a.decimals }

// CurrentRate queries feed for its latest answer.
func (a *PriceFeedAdapter) CurrentRate(ctx context.Context, feed common.Address) (ConversionRate, error) {
	if a == nil || a.feed == nil {
		return ConversionRate{}, fmt.Errorf("%w: no price feed configured", ErrOracleUnavailable)
	}
	if feed == (common.Address{}) {
		return ConversionRate{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, ErrInvalidPriceFeed)
	}
	answer, err := a.feed.LatestAnswer(ctx, feed)
	if err != nil {
		return ConversionRate{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if answer.Value == nil || answer.Value.Sign() <= 0 {
		return ConversionRate{}, fmt.Errorf("%w: invalid answer %v", ErrOracleUnavailable, answer.Value)
	}
	if answer.UpdatedAt.IsZero() {
		return ConversionRate{}, fmt.Errorf("%w: answer has no timestamp", ErrOracleUnavailable)
	}
	if a.maxAge > 0 {
		age := a.nowFn().Sub(answer.UpdatedAt)
		if age > a.maxAge {
			return ConversionRate{}, fmt.Errorf("%w: answer is %s old (max %s)", ErrOracleUnavailable, age.Truncate(time.Second), a.maxAge)
		}
	}
	return ConversionRate{
		Feed:      feed,
		RoundID:   newBigInt(answer.RoundID),
		Value:     new(big.Int).Set(answer.Value),
		Decimals:  a.decimals,
		UpdatedAt: answer.UpdatedAt,
	}, nil
}

var errManualFeedMissing = errors.New("manual feed: no answer recorded")

// ManualFeed provides an in-memory price feed used for tests and local
// networks without an oracle deployment.
type ManualFeed struct {
	mu      sync.RWMutex
	answers map[common.Address]Answer
	errs    map[common.Address]error
	calls   int
	live    func() time.Time
}

// NewManualFeed constructs an empty manual feed.
func NewManualFeed() *ManualFeed {
	return &ManualFeed{
		answers: make(map[common.Address]Answer),
		errs:    make(map[common.Address]error),
	}
}

// Set records value as the latest answer for feed.
func (m *ManualFeed) Set(feed common.Address, value *big.Int, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.answers[feed]
	round := big.NewInt(1)
	if prev.RoundID != nil {
		round = new(big.Int).Add(prev.RoundID, big.NewInt(1))
	}
	m.answers[feed] = Answer{RoundID: round, Value: newBigInt(value), UpdatedAt: updatedAt}
	delete(m.errs, feed)
}

// SetLive makes every answer report now() as its update time, so a pinned
// local price never goes stale. A nil now restores the recorded timestamps.
func (m *ManualFeed) SetLive(now func() time.Time) {
	m.mu.Lock()
	m.live = now
	m.mu.Unlock()
}

// SetError makes every query against feed fail with err until Set is called.
func (m *ManualFeed) SetError(feed common.Address, err error) {
	m.mu.Lock()
	m.errs[feed] = err
	m.mu.Unlock()
}

// Calls returns how many times LatestAnswer has been invoked.
func (m *ManualFeed) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// LatestAnswer implements PriceFeed.
func (m *ManualFeed) LatestAnswer(ctx context.Context, feed common.Address) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errs[feed]; err != nil {
		return Answer{}, err
	}
	answer, ok := m.answers[feed]
	if !ok {
		return Answer{}, fmt.Errorf("%w for %s", errManualFeedMissing, feed.Hex())
	}
	updatedAt := answer.UpdatedAt
	if m.live != nil {
		updatedAt = m.live()
	}
	return Answer{RoundID: newBigInt(answer.RoundID), Value: newBigInt(answer.Value), UpdatedAt: updatedAt}, nil
}
