// Package metrics exposes audit results as Prometheus metrics. A single-shot
// CLI has no scrape endpoint, so the registry is written to a node-exporter
// textfile instead.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sitemapaudit/internal/grouping"
	"sitemapaudit/internal/models"
)

// Recorder collects per-probe metrics for one audit run.
type Recorder struct {
	registry   *prometheus.Registry
	probes     *prometheus.CounterVec
	latency    prometheus.Histogram
	discovered prometheus.Gauge
	completed  prometheus.Gauge
}

// New creates a Recorder whose metrics carry a site label.
func New(site string) *Recorder {
	labels := prometheus.Labels{"site": site}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "sitemapaudit",
			Name:        "probes_total",
			Help:        "URLs probed, by status code and category.",
			ConstLabels: labels,
		}, []string{"status", "category"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "sitemapaudit",
			Name:        "probe_duration_seconds",
			Help:        "Time taken by a single probe.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
		discovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "sitemapaudit",
			Name:        "discovered_urls",
			Help:        "URLs listed in the site's sitemaps.",
			ConstLabels: labels,
		}),
		completed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "sitemapaudit",
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the last audit finished.",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(r.probes, r.latency, r.discovered, r.completed)
	return r
}

// Report records one progress event. It satisfies checker.Reporter.
func (r *Recorder) Report(ev models.ProgressEvent) {
	r.probes.WithLabelValues(strconv.Itoa(ev.Status), grouping.Category(ev.Status)).Inc()
	r.latency.Observe(ev.Latency.Seconds())
}

// SetDiscovered records how many URLs discovery returned.
func (r *Recorder) SetDiscovered(n int) {
	r.discovered.Set(float64(n))
}

// MarkCompleted records the end of the run.
func (r *Recorder) MarkCompleted(t time.Time) {
	r.completed.Set(float64(t.Unix()))
}

// Gatherer returns the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
