package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/flightcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus collectors.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    *prometheus.CounterVec
	entries   prometheus.Gauge
	loadDur   prometheus.Histogram
	batchSize prometheus.Histogram
	batchDur  prometheus.Histogram
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits, including callers that waited for a concurrent load",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses that invoked a loader",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		loadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Latency of single-key loader calls",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_keys",
			Help:        "Number of keys passed to the batch loader",
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
			ConstLabels: constLabels,
		}),
		batchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "batch_duration_seconds",
			Help:        "Latency of batch loader calls",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.entries, a.loadDur, a.batchSize, a.batchDur)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the resident entries gauge.
func (a *Adapter) Size(entries int) {
	a.entries.Set(float64(entries))
}

func (a *Adapter) ObserveLoad(d time.Duration) {
	a.loadDur.Observe(d.Seconds())
}

func (a *Adapter) ObserveBatch(size int, d time.Duration) {
	a.batchSize.Observe(float64(size))
	a.batchDur.Observe(d.Seconds())
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
