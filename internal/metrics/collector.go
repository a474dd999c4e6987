package metrics

import (
	"net/http"
	"time"

	"ceph2swift/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes migration counters over Prometheus and feeds the
// progress tracker.
type Collector struct {
	objectsTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	inflightWorkers prometheus.Gauge
	retriesTotal    prometheus.Counter
	duration        prometheus.Histogram
	registry        *prometheus.Registry
	tracker         *progress.Tracker
}

// New creates a collector with its own registry so repeated construction in
// tests does not collide.
func New() *Collector {
	c := &Collector{
		objectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_objects_total",
				Help: "Total number of objects processed",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_bytes_total",
				Help: "Total bytes migrated",
			},
		),
		inflightWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "migrate_inflight_workers",
				Help: "Number of workers currently transferring",
			},
		),
		retriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_retries_total",
				Help: "Total number of per-object retry attempts",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "migrate_object_duration_seconds",
				Help:    "Time taken to migrate an object",
				Buckets: prometheus.DefBuckets,
			},
		),
		tracker: progress.NewTracker(),
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(c.objectsTotal, c.bytesTotal, c.inflightWorkers, c.retriesTotal, c.duration)

	return c
}

// IncDone records a successful migration of an object of the given size.
func (c *Collector) IncDone(bytes int64) {
	c.objectsTotal.WithLabelValues("done").Inc()
	c.bytesTotal.Add(float64(bytes))
	c.tracker.AddDone(bytes)
}

// IncFailed records a terminally failed object.
func (c *Collector) IncFailed() {
	c.objectsTotal.WithLabelValues("failed").Inc()
	c.tracker.AddFailed()
}

// IncSkipped records an object skipped because it was already migrated.
func (c *Collector) IncSkipped(bytes int64) {
	c.objectsTotal.WithLabelValues("skipped").Inc()
	c.tracker.AddSkipped(bytes)
}

// IncRetry records one retry attempt.
func (c *Collector) IncRetry() {
	c.retriesTotal.Inc()
}

// WorkerStarted and WorkerFinished track the in-flight gauge.
func (c *Collector) WorkerStarted()  { c.inflightWorkers.Inc() }
func (c *Collector) WorkerFinished() { c.inflightWorkers.Dec() }

// ObserveDuration records one object's transfer duration.
func (c *Collector) ObserveDuration(d time.Duration) {
	c.duration.Observe(d.Seconds())
}

// Tracker returns the progress tracker fed by this collector.
func (c *Collector) Tracker() *progress.Tracker {
	return c.tracker
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server returns an HTTP server exposing /metrics on addr. The caller owns
// its lifecycle and shuts it down when the run ends.
func (c *Collector) Server(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
