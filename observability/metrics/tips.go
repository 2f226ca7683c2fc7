package metrics

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"vwtips/native/tips"
)

// TipsMetrics records contract operation outcomes. It implements
// tips.Observer.
type TipsMetrics struct {
	operations     *prometheus.CounterVec
	oracleFailures prometheus.Counter
	ledger         *ledgerGauge

	opCounter metric.Int64Counter
}

var (
	tipsOnce     sync.Once
	tipsRegistry *TipsMetrics
)

func Tips() *TipsMetrics {
	tipsOnce.Do(func() {
		tipsRegistry = &TipsMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "tips_operations_total",
				Help: "Count of contract operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "tips_oracle_failures_total",
				Help: "Count of operations aborted because the price feed was unavailable.",
			}),
			ledger: &ledgerGauge{Gauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "tips_ledger_balance_wei",
				Help: "Withdrawable fee balance, read from state on scrape when a source is tracked.",
			})},
		}
		prometheus.MustRegister(
			tipsRegistry.operations,
			tipsRegistry.oracleFailures,
			tipsRegistry.ledger,
		)
		tipsRegistry.initMeter()
	})
	return tipsRegistry
}

// initMeter mirrors the operation counter onto the global OpenTelemetry meter
// provider, which is a no-op unless telemetry was initialised first.
func (m *TipsMetrics) initMeter() {
	meter := otel.GetMeterProvider().Meter("vwtips/tips")
	counter, err := meter.Int64Counter("tips.operations")
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter("vwtips/tips").Int64Counter("tips.operations")
	}
	m.opCounter = counter
}

// ObserveOperation implements tips.Observer.
func (m *TipsMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.operations.WithLabelValues(op, outcome).Inc()
	if m.opCounter != nil {
		m.opCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
	if outcome == "oracle_unavailable" {
		m.oracleFailures.Inc()
	}
}

// SetLedger publishes the current ledger balance.
func (m *TipsMetrics) SetLedger(amount *big.Int) {
	if m == nil {
		return
	}
	m.ledger.set(amount)
}

// TrackLedger makes every scrape refresh the ledger gauge from source. A nil
// source stops tracking and leaves the last published value.
func (m *TipsMetrics) TrackLedger(source func() (*big.Int, error)) {
	if m == nil {
		return
	}
	m.ledger.mu.Lock()
	m.ledger.source = source
	m.ledger.mu.Unlock()
}

// ledgerGauge is a gauge that can pull its value at collection time. Failed
// reads keep the previous value.
type ledgerGauge struct {
	prometheus.Gauge

	mu     sync.Mutex
	source func() (*big.Int, error)
}

func (g *ledgerGauge) set(amount *big.Int) {
	if amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	g.Gauge.Set(value)
}

// Collect implements prometheus.Collector.
func (g *ledgerGauge) Collect(ch chan<- prometheus.Metric) {
	g.mu.Lock()
	source := g.source
	g.mu.Unlock()
	if source != nil {
		if amount, err := source(); err == nil {
			g.set(amount)
		}
	}
	g.Gauge.Collect(ch)
}

// Outcome classifies an operation error into a stable label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, tips.ErrUnauthorized), errors.Is(err, tips.ErrRenounceOthers):
		return "unauthorized"
	case errors.Is(err, tips.ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, tips.ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, tips.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, tips.ErrNothingToWithdraw):
		return "empty_ledger"
	case errors.Is(err, tips.ErrAlreadyInitialized), errors.Is(err, tips.ErrNotInitialized):
		return "lifecycle"
	case errors.Is(err, tips.ErrInvalidRecipient), errors.Is(err, tips.ErrZeroAmount),
		errors.Is(err, tips.ErrInvalidPriceFeed), errors.Is(err, tips.ErrInvalidAccount),
		errors.Is(err, tips.ErrInvalidUpgrade), errors.Is(err, tips.ErrCannotRemoveLastAdmin):
		return "rejected"
	default:
		return "error"
	}
}
