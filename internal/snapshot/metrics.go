package snapshot

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes snapshot cache behaviour per tenant scope.
type Metrics struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	buildFailures *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	health        *prometheus.GaugeVec
}

// NewMetrics registers the snapshot collectors on the given registerer.
// Re-registration reuses the existing collectors so tests can construct
// multiple stores against the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sproutly_snapshot_hits_total",
			Help: "Number of permission checks served from a healthy snapshot.",
		}, []string{"scope"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sproutly_snapshot_miss_total",
			Help: "Number of snapshot lookups that required a rebuild.",
		}, []string{"scope"}),
		buildFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sproutly_snapshot_build_failures_total",
			Help: "Number of failed snapshot rebuilds.",
		}, []string{"scope"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sproutly_snapshot_build_duration_seconds",
			Help:    "Duration of snapshot rebuilds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"scope"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sproutly_snapshot_health",
			Help: "Snapshot health per scope: 2 healthy, 1 stale, 0 unavailable.",
		}, []string{"scope"}),
	}
	m.hits = registerCounterVec(reg, m.hits)
	m.misses = registerCounterVec(reg, m.misses)
	m.buildFailures = registerCounterVec(reg, m.buildFailures)
	m.buildDuration = registerHistogramVec(reg, m.buildDuration)
	m.health = registerGaugeVec(reg, m.health)
	return m
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.CounterVec)
		}
	}
	return c
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := reg.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.HistogramVec)
		}
	}
	return h
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) *prometheus.GaugeVec {
	if err := reg.Register(g); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	return g
}

func (m *Metrics) recordHit(scope string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(scope).Inc()
}

func (m *Metrics) recordMiss(scope string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(scope).Inc()
}

func (m *Metrics) recordBuildFailure(scope string) {
	if m == nil {
		return
	}
	m.buildFailures.WithLabelValues(scope).Inc()
}

func (m *Metrics) observeBuild(scope string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.WithLabelValues(scope).Observe(d.Seconds())
}

func (m *Metrics) setHealth(scope string, h Health) {
	if m == nil {
		return
	}
	m.health.WithLabelValues(scope).Set(float64(h))
}
