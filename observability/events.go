package observability

import (
	"context"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"vwtips/core/events"
	"vwtips/native/tips"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	volume  *prometheus.CounterVec

	// emittedOTel lets short-lived processes push event counts over OTLP.
	emittedOTel metric.Int64Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking contract events. It satisfies
// events.Emitter so it can be attached next to other emitters.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tips",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of contract events segmented by type.",
			}, []string{"type"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tips",
				Subsystem: "events",
				Name:      "volume_wei_total",
				Help:      "Native amount moved by tips and withdrawals, split by component.",
			}, []string{"component"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.volume)
		counter, err := otel.GetMeterProvider().Meter("vwtips/events").Int64Counter("tips.events")
		if err != nil {
			counter, _ = noop.NewMeterProvider().Meter("vwtips/events").Int64Counter("tips.events")
		}
		eventRegistry.emittedOTel = counter
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(evt.EventType()).Inc()
	if m.emittedOTel != nil {
		m.emittedOTel.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", evt.EventType())))
	}
	switch e := evt.(type) {
	case tips.TipEvent:
		m.addVolume("gross", e.Gross)
		m.addVolume("fee", e.Fee)
		m.addVolume("net", e.Net)
	case tips.WithdrawalEvent:
		m.addVolume("withdrawn", e.Amount)
	}
}

func (m *eventMetrics) addVolume(component string, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.volume.WithLabelValues(component).Add(value)
}
