// Package observability hosts the prometheus registries and the event bridge
// used by the farming daemon.
package observability

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"yieldfarm/core/events"
)

type farmingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	eventsOut  *prometheus.CounterVec
	shortfall  prometheus.Counter
	staked     *prometheus.GaugeVec
}

var (
	farmingMetricsOnce sync.Once
	farmingRegistry    *farmingMetrics
)

// Farming returns the lazily-initialised metrics registry tracking ledger
// operations and emitted events.
func Farming() *farmingMetrics {
	farmingMetricsOnce.Do(func() {
		farmingRegistry = &farmingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldfarm",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "yieldfarm",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for settlement operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			eventsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldfarm",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of structured ledger events segmented by type.",
			}, []string{"type"}),
			shortfall: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "yieldfarm",
				Subsystem: "engine",
				Name:      "reward_shortfalls_total",
				Help:      "Reward payouts truncated because the engine held insufficient reward balance.",
			}),
			staked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "yieldfarm",
				Subsystem: "pools",
				Name:      "total_staked",
				Help:      "Current total staked per pool, as a float approximation of the ledger value.",
			}, []string{"pool"}),
		}
		prometheus.MustRegister(
			farmingRegistry.operations,
			farmingRegistry.latency,
			farmingRegistry.eventsOut,
			farmingRegistry.shortfall,
			farmingRegistry.staked,
		)
	})
	return farmingRegistry
}

// RecordOperation increments the operation counter.
func (m *farmingMetrics) RecordOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveLatency records the duration of a settlement operation in seconds.
func (m *farmingMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(operation).Observe(seconds)
}

// SetTotalStaked publishes the pool's staked total. Values beyond float64
// precision degrade gracefully; the gauge is an operational signal, not an
// accounting source.
func (m *farmingMetrics) SetTotalStaked(pool string, total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	if math.IsInf(value, 0) || math.IsNaN(value) {
		return
	}
	m.staked.WithLabelValues(pool).Set(value)
}

// Recorder bridges the engine's event stream into prometheus counters while
// forwarding each event to an optional downstream emitter.
type Recorder struct {
	next events.Emitter
}

// NewRecorder wraps next (which may be nil) with metric recording.
func NewRecorder(next events.Emitter) *Recorder {
	return &Recorder{next: next}
}

// Emit implements the events.Emitter interface.
func (r *Recorder) Emit(event events.Event) {
	if event == nil {
		return
	}
	metrics := Farming()
	metrics.eventsOut.WithLabelValues(event.EventType()).Inc()
	if event.EventType() == events.TypeRewardShortfall {
		metrics.shortfall.Inc()
	}
	if r != nil && r.next != nil {
		r.next.Emit(event)
	}
}
