package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records discovery and sync activity as Prometheus metrics.
type Collector struct {
	discoveryRuns     *prometheus.CounterVec
	discoveryDuration prometheus.Histogram
	pagesFetched      prometheus.Counter
	itemsFound        prometheus.Counter
	syncOutcomes      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		discoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velocity_scout_discovery_runs_total",
			Help: "Discovery runs by result.",
		}, []string{"result"}),
		discoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "velocity_scout_discovery_duration_seconds",
			Help:    "Wall time of discovery runs.",
			Buckets: prometheus.DefBuckets,
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "velocity_scout_search_pages_total",
			Help: "Search result pages requested.",
		}),
		itemsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "velocity_scout_items_found_total",
			Help: "Videos that passed every filter.",
		}),
		syncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "velocity_scout_sync_total",
			Help: "Sync invocations by direction and status.",
		}, []string{"direction", "status"}),
	}

	reg.MustRegister(
		c.discoveryRuns,
		c.discoveryDuration,
		c.pagesFetched,
		c.itemsFound,
		c.syncOutcomes,
	)

	return c
}

// RecordDiscovery records one finished discovery run.
func (c *Collector) RecordDiscovery(items int, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.discoveryRuns.WithLabelValues(result).Inc()
	c.discoveryDuration.Observe(duration.Seconds())
	c.itemsFound.Add(float64(items))
}

// RecordPage records one search page request.
func (c *Collector) RecordPage() {
	c.pagesFetched.Inc()
}

// RecordSync records the outcome of one sync invocation.
func (c *Collector) RecordSync(direction, status string) {
	c.syncOutcomes.WithLabelValues(direction, status).Inc()
}

// MetricsHandler serves the metrics gathered by g in the Prometheus text format.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
