package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report watch activity.
type Metrics struct {
	eventsTotal   *prometheus.CounterVec
	watchOutcomes *prometheus.CounterVec
	watchDuration *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when multiple clients are constructed
// in one process.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Tests supply a fresh registry to keep metric names unique. Registration
// errors panic, mirroring promauto semantics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Subsystem: "tasks",
			Name:      "events_total",
			Help:      "Stream events observed per transport and kind.",
		},
		[]string{"transport", "kind"},
	)
	watchOutcomes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docstream",
			Subsystem: "tasks",
			Name:      "watch_outcomes_total",
			Help:      "Watch attempts by transport and terminal outcome.",
		},
		[]string{"transport", "outcome"},
	)
	watchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docstream",
			Subsystem: "tasks",
			Name:      "watch_duration_seconds",
			Help:      "Wall-clock duration of watch attempts.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	for _, collector := range []prometheus.Collector{eventsTotal, watchOutcomes, watchDuration} {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					if collector == eventsTotal {
						eventsTotal = existing
					} else {
						watchOutcomes = existing
					}
				case *prometheus.HistogramVec:
					watchDuration = existing
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		eventsTotal:   eventsTotal,
		watchOutcomes: watchOutcomes,
		watchDuration: watchDuration,
	}
}

// ObserveEvent counts one stream event.
func (m *Metrics) ObserveEvent(transport, kind string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(transport, kind).Inc()
}

// ObserveWatch records the outcome and duration of one watch attempt.
func (m *Metrics) ObserveWatch(transport, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.watchOutcomes.WithLabelValues(transport, outcome).Inc()
	m.watchDuration.WithLabelValues(transport).Observe(elapsed.Seconds())
}
