package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	events    *prometheus.CounterVec
	paid      *prometheus.CounterVec
	transfers prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "merkledrop",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			paid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "merkledrop",
				Subsystem: "events",
				Name:      "paid_out_total",
				Help:      "Token base units paid out by claims and reclaims, segmented by event type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "merkledrop",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of token balance movements.",
			}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.paid, eventRegistry.transfers)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// RecordPayout adds amount to the paid-out counter. Amounts that do not fit a
// float are approximated.
func (m *eventMetrics) RecordPayout(eventType string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.paid.WithLabelValues(strings.TrimSpace(eventType)).Add(value)
}

func (m *eventMetrics) RecordTransfer() {
	if m == nil {
		return
	}
	m.transfers.Inc()
}
