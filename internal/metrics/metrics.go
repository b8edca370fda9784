// Package metrics exposes Prometheus instruments for the indexer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the indexer's instruments. It observes both the mappers and
// the sync.
type Metrics struct {
	EventsProcessed *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	EventLatency    *prometheus.HistogramVec

	ChainHead       prometheus.Gauge
	LastSyncedBlock prometheus.Gauge
	BlocksBehind    prometheus.Gauge
	RangeEvents     prometheus.Counter
	RangeDuration   prometheus.Histogram

	PoolUpdatesPublished *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments on reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Metrics {
	if namespace == "" {
		namespace = "v3_indexer"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapper",
			Name:      "events_processed_total",
			Help:      "Total number of events applied to the entity store",
		}, []string{"event"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mapper",
			Name:      "events_skipped_total",
			Help:      "Total number of events dropped by reason",
		}, []string{"event", "reason"}),
		EventLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mapper",
			Name:      "event_duration_seconds",
			Help:      "Time to apply and commit one event",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"event"}),

		ChainHead: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "chain_head_block",
			Help:      "Latest block reported by the RPC endpoint",
		}),
		LastSyncedBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "last_synced_block",
			Help:      "Last block whose events were all routed",
		}),
		BlocksBehind: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "blocks_behind",
			Help:      "Distance between the chain head and the last synced block",
		}),
		RangeEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_fetched_total",
			Help:      "Total number of logs fetched and routed",
		}),
		RangeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "range_duration_seconds",
			Help:      "Time to fetch and route one block range",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),

		PoolUpdatesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "pool_updates_total",
			Help:      "Pool updates sent to the realtime server by status",
		}, []string{"status"}),

		gatherer: reg,
	}
}

// EventProcessed records a committed event.
func (m *Metrics) EventProcessed(event string, duration time.Duration) {
	m.EventsProcessed.WithLabelValues(event).Inc()
	m.EventLatency.WithLabelValues(event).Observe(duration.Seconds())
}

// EventSkipped records an event dropped by the skip policy.
func (m *Metrics) EventSkipped(event, reason string) {
	m.EventsSkipped.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) HeadObserved(head, synced uint64) {
	m.ChainHead.Set(float64(head))
	m.LastSyncedBlock.Set(float64(synced))
	if head > synced {
		m.BlocksBehind.Set(float64(head - synced))
	} else {
		m.BlocksBehind.Set(0)
	}
}

func (m *Metrics) RangeSynced(_, toBlock uint64, events int, elapsed time.Duration) {
	m.LastSyncedBlock.Set(float64(toBlock))
	m.RangeEvents.Add(float64(events))
	m.RangeDuration.Observe(elapsed.Seconds())
}

// Published counts a realtime publish attempt.
func (m *Metrics) Published(ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.PoolUpdatesPublished.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
