package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the analytics collectors. Each App registers its own set so
// several instances can coexist in one process.
type Metrics struct {
	collected   *prometheus.CounterVec
	cache       *prometheus.CounterVec
	sourceError *prometheus.CounterVec
	compute     *prometheus.HistogramVec
	dropped     prometheus.Counter
}

// NewMetrics registers the analytics collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		collected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitgrid",
			Name:      "collected_total",
			Help:      "Collect requests by outcome.",
		}, []string{"kind"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitgrid",
			Name:      "view_cache_total",
			Help:      "Composed view cache lookups.",
		}, []string{"view", "result"}),
		sourceError: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitgrid",
			Name:      "source_errors_total",
			Help:      "Failed reads from the data source.",
		}, []string{"op"}),
		compute: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "visitgrid",
			Name:      "compose_duration_seconds",
			Help:      "Time spent composing a view from source data.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"view"}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "visitgrid",
			Name:      "heatmap_dropped_cells_total",
			Help:      "Weekly matrix cells discarded for bad indices or counts.",
		}),
	}
}

func (m *Metrics) cacheResult(view string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(view, result).Inc()
}
