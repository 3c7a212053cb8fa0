package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bobarin/reelsmith/internal/models"
)

// Collector exposes provider attempt and job lifecycle metrics. It is wired
// as the executor's attempt observer and as a tracker listener.
type Collector struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	jobsInFlight    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewCollector registers the metrics on reg. A nil reg uses a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "provider_attempts_total",
			Help: "Provider calls made by the fallback executor, by outcome",
		}, []string{"provider", "capability", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_attempt_duration_seconds",
			Help:    "Wall time of one provider call",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"provider", "capability"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_finished_total",
			Help: "Jobs that reached a terminal stage",
		}, []string{"stage"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Time from a job's start to its terminal stage",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Jobs currently processing",
		}),
		gatherer: reg,
	}

	reg.MustRegister(c.attempts, c.attemptDuration, c.jobsFinished, c.jobDuration, c.jobsInFlight)
	return c
}

// Handler serves the registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveAttempt records one provider call. Unavailable providers are never
// invoked, so their duration is not observed.
func (c *Collector) ObserveAttempt(provider models.ProviderID, capability models.Capability, outcome string, elapsed time.Duration) {
	c.attempts.WithLabelValues(string(provider), string(capability), outcome).Inc()
	if elapsed > 0 {
		c.attemptDuration.WithLabelValues(string(provider), string(capability)).Observe(elapsed.Seconds())
	}
}

func (c *Collector) JobStarted(rec models.JobRecord) {
	c.jobsInFlight.Inc()
}

func (c *Collector) JobFinished(rec models.JobRecord) {
	c.jobsFinished.WithLabelValues(string(rec.Stage)).Inc()

	// Jobs failed before starting were never counted in flight.
	if rec.StartedAt == nil {
		return
	}
	c.jobsInFlight.Dec()
	if rec.FinishedAt != nil {
		c.jobDuration.Observe(rec.FinishedAt.Sub(*rec.StartedAt).Seconds())
	}
}
