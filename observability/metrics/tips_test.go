package metrics

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"vwtips/native/tips"
)

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":                 nil,
		"unauthorized":       &tips.UnauthorizedError{},
		"oracle_unavailable": fmt.Errorf("%w: timeout", tips.ErrOracleUnavailable),
		"overflow":           tips.ErrArithmeticOverflow,
		"empty_ledger":       tips.ErrNothingToWithdraw,
		"rejected":           tips.ErrZeroAmount,
		"lifecycle":          tips.ErrAlreadyInitialized,
		"error":              errors.New("disk full"),
	}
	for want, err := range cases {
		require.Equal(t, want, Outcome(err), want)
	}
}

func TestTipsMetricsObserve(t *testing.T) {
	m := Tips()
	before := testutil.ToFloat64(m.oracleFailures)
	m.ObserveOperation(tips.OpTip, fmt.Errorf("%w: stale", tips.ErrOracleUnavailable))
	m.ObserveOperation(tips.OpTip, nil)

	require.Equal(t, before+1, testutil.ToFloat64(m.oracleFailures))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.operations.WithLabelValues(tips.OpTip, "ok")), 1.0)

	m.SetLedger(big.NewInt(1234))
	require.Equal(t, 1234.0, testutil.ToFloat64(m.ledger))
}

func TestTipsMetricsTrackLedgerOnScrape(t *testing.T) {
	m := Tips()
	t.Cleanup(func() { m.TrackLedger(nil) })

	balance := big.NewInt(50)
	m.TrackLedger(func() (*big.Int, error) { return balance, nil })
	require.Equal(t, 50.0, testutil.ToFloat64(m.ledger))

	balance = big.NewInt(75)
	require.Equal(t, 75.0, testutil.ToFloat64(m.ledger))

	m.TrackLedger(func() (*big.Int, error) { return nil, errors.New("closed") })
	require.Equal(t, 75.0, testutil.ToFloat64(m.ledger))
}
