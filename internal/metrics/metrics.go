// Package metrics exports client engine activity as Prometheus metrics.
//
// A Collector implements client.Observer. Metrics live on a private
// registry so several clients, or tests, do not collide on the default one.
package metrics

import (
	"net/http"
	"time"

	"github.com/hkolbeck/pixelblaze-go/internal/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pixelblaze"

// Collector records request outcomes, unsolicited traffic and connection
// health for one client.
type Collector struct {
	registry *prometheus.Registry

	submitted   *prometheus.CounterVec
	completed   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	unsolicited *prometheus.CounterVec
	reconnects  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

// NewCollector creates a Collector. Labels are attached to every metric,
// typically the controller host.
func NewCollector(labels prometheus.Labels) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "requests",
			Name:        "submitted_total",
			Help:        "Requests queued for a reply, by reply kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "requests",
			Name:        "completed_total",
			Help:        "Requests whose reply was delivered, by reply kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "requests",
			Name:        "failed_total",
			Help:        "Requests that ended in failure, by reply kind and cause.",
			ConstLabels: labels,
		}, []string{"kind", "cause"}),
		unsolicited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "frames",
			Name:        "unsolicited_total",
			Help:        "Pushed messages routed to the watcher, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "connection",
			Name:        "reconnect_attempts_total",
			Help:        "Reconnect attempts, by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "requests",
			Name:        "latency_seconds",
			Help:        "Time from submission to reply delivery.",
			ConstLabels: labels,
			Buckets:     []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"kind"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "queue",
			Name:        "depth",
			Help:        "Requests waiting for a reply after the last poll.",
			ConstLabels: labels,
		}),
	}

	c.registry.MustRegister(
		c.submitted,
		c.completed,
		c.failed,
		c.unsolicited,
		c.reconnects,
		c.latency,
		c.queueDepth,
	)
	return c
}

// Registry exposes the underlying registry, e.g. to add process metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Submitted implements client.Observer.
func (c *Collector) Submitted(kind string) {
	c.submitted.WithLabelValues(kind).Inc()
}

// Completed implements client.Observer.
func (c *Collector) Completed(kind string, latency time.Duration) {
	c.completed.WithLabelValues(kind).Inc()
	c.latency.WithLabelValues(kind).Observe(latency.Seconds())
}

// Failed implements client.Observer.
func (c *Collector) Failed(kind string, cause client.FailureCause) {
	c.failed.WithLabelValues(kind, cause.String()).Inc()
}

// Unsolicited implements client.Observer.
func (c *Collector) Unsolicited(kind string) {
	c.unsolicited.WithLabelValues(kind).Inc()
}

// QueueDepth implements client.Observer.
func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

// ReconnectAttempt implements client.Observer.
func (c *Collector) ReconnectAttempt(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.reconnects.WithLabelValues(result).Inc()
}

var _ client.Observer = (*Collector)(nil)
