package tips

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type feedFunc func(ctx context.Context, feed common.Address) (Answer, error)

func (f feedFunc) LatestAnswer(ctx context.Context, feed common.Address) (Answer, error) {
	return f(ctx, feed)
}

func TestPriceFeedAdapterReturnsRate(t *testing.T) {
	feed := NewManualFeed()
	feed.Set(testFeed, big.NewInt(185012345678), testNow.Add(-time.Minute))
	adapter := NewPriceFeedAdapter(feed, DefaultFeedDecimals, 10*time.Minute)
	adapter.SetNowFunc(func() time.Time { return testNow })

	rate, err := adapter.CurrentRate(context.Background(), testFeed)
	require.NoError(t, err)
	require.Equal(t, "185012345678", rate.Value.String())
	require.Equal(t, "1", rate.RoundID.String())
	require.Equal(t, DefaultFeedDecimals, rate.Decimals)
	require.Equal(t, "1850.12345678", rate.String())

	half := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil))
	require.Equal(t, "92506172839", rate.Convert(half).String())
}

func TestPriceFeedAdapterFailures(t *testing.T) {
	cases := []struct {
		name   string
		answer Answer
		err    error
	}{
		{name: "feed error", err: errors.New("boom")},
		{name: "zero value", answer: Answer{Value: big.NewInt(0), UpdatedAt: testNow}},
		{name: "negative value", answer: Answer{Value: big.NewInt(-5), UpdatedAt: testNow}},
		{name: "nil value", answer: Answer{UpdatedAt: testNow}},
		{name: "missing timestamp", answer: Answer{Value: big.NewInt(1)}},
		{name: "stale", answer: Answer{Value: big.NewInt(1), UpdatedAt: testNow.Add(-2 * time.Hour)}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			adapter := NewPriceFeedAdapter(feedFunc(func(context.Context, common.Address) (Answer, error) {
				return tc.answer, tc.err
			}), DefaultFeedDecimals, time.Hour)
			adapter.SetNowFunc(func() time.Time { return testNow })
			_, err := adapter.CurrentRate(context.Background(), testFeed)
			require.ErrorIs(t, err, ErrOracleUnavailable)
		})
	}
}

func TestPriceFeedAdapterZeroMaxAgeAcceptsOldAnswers(t *testing.T) {
	feed := NewManualFeed()
	feed.Set(testFeed, big.NewInt(7), time.Unix(1, 0))
	adapter := NewPriceFeedAdapter(feed, 8, 0)
	rate, err := adapter.CurrentRate(context.Background(), testFeed)
	require.NoError(t, err)
	require.Equal(t, "7", rate.Value.String())
}

func TestPriceFeedAdapterRejectsMissingFeed(t *testing.T) {
	var nilAdapter *PriceFeedAdapter
	_, err := nilAdapter.CurrentRate(context.Background(), testFeed)
	require.ErrorIs(t, err, ErrOracleUnavailable)

	adapter := NewPriceFeedAdapter(NewManualFeed(), 8, 0)
	_, err = adapter.CurrentRate(context.Background(), common.Address{})
	require.ErrorIs(t, err, ErrOracleUnavailable)
	_, err = adapter.CurrentRate(context.Background(), testFeed)
	require.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestManualFeedRounds(t *testing.T) {
	feed := NewManualFeed()
	feed.Set(testFeed, big.NewInt(1), testNow)
	feed.Set(testFeed, big.NewInt(2), testNow)
	answer, err := feed.LatestAnswer(context.Background(), testFeed)
	require.NoError(t, err)
	require.Equal(t, "2", answer.RoundID.String())
	require.Equal(t, "2", answer.Value.String())

	feed.SetError(testFeed, errors.New("paused"))
	_, err = feed.LatestAnswer(context.Background(), testFeed)
	require.EqualError(t, err, "paused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = feed.LatestAnswer(ctx, testFeed)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, feed.Calls())
}

func TestLiveManualFeedNeverGoesStale(t *testing.T) {
	clock := testNow
	feed := NewManualFeed()
	feed.Set(testFeed, big.NewInt(200000000000), clock)
	adapter := NewPriceFeedAdapter(feed, DefaultFeedDecimals, time.Hour)
	adapter.SetNowFunc(func() time.Time { return clock })

	clock = clock.Add(61 * time.Minute)
	_, err := adapter.CurrentRate(context.Background(), testFeed)
	require.ErrorIs(t, err, ErrOracleUnavailable)

	feed.SetLive(func() time.Time { return clock })
	rate, err := adapter.CurrentRate(context.Background(), testFeed)
	require.NoError(t, err)
	require.Equal(t, clock, rate.UpdatedAt)
	require.Equal(t, "2000.00000000", rate.String())

	clock = clock.Add(24 * time.Hour)
	_, err = adapter.CurrentRate(context.Background(), testFeed)
	require.NoError(t, err)

	feed.SetLive(nil)
	_, err = adapter.CurrentRate(context.Background(), testFeed)
	require.ErrorIs(t, err, ErrOracleUnavailable)
}
