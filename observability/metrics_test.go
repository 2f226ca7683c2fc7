package observability

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"vwtips/native/tips"
)

func TestHTTPMetricsObserve(t *testing.T) {
	m := HTTP()
	m.Observe("/v1/tips", http.MethodGet, http.StatusOK, time.Millisecond)
	m.Observe("/v1/tips", http.MethodGet, http.StatusServiceUnavailable, time.Millisecond)
	m.RecordThrottle("", "")

	require.GreaterOrEqual(t, testutil.ToFloat64(m.requests.WithLabelValues("/v1/tips", http.MethodGet, "success")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.errors.WithLabelValues("/v1/tips", http.MethodGet, "503")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")), 1.0)
}

func TestEventMetricsEmit(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.volume.WithLabelValues("fee"))
	m.Emit(tips.TipEvent{Gross: big.NewInt(1000), Fee: big.NewInt(10), Net: big.NewInt(990)})
	m.Emit(tips.WithdrawalEvent{Amount: big.NewInt(10)})

	require.Equal(t, before+10, testutil.ToFloat64(m.volume.WithLabelValues("fee")))
	require.GreaterOrEqual(t, testutil.ToFloat64(m.emitted.WithLabelValues(tips.EventTypeTip)), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.volume.WithLabelValues("withdrawn")), 10.0)
}

func TestHTTPLatencyHistogram(t *testing.T) {
	m := HTTP()
	m.Observe("/v1/tips/rate", http.MethodGet, http.StatusOK, 20*time.Millisecond)

	var metric dto.Metric
	observer := m.latency.WithLabelValues("/v1/tips/rate", http.MethodGet)
	require.NoError(t, observer.(prometheus.Metric).Write(&metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	require.GreaterOrEqual(t, hist.GetSampleCount(), uint64(1))
	require.Greater(t, hist.GetSampleSum(), 0.0)
}
