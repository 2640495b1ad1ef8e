// Package metrics records transport, polling and synchronization counters on
// a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "threadsync"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Poll tick outcome labels.
const (
	TickFetched   = "fetched"
	TickFailed    = "failed"
	TickExhausted = "exhausted"
	TickNoKey     = "nokey"
)

// Recorder is the sink the core components report into.
type Recorder interface {
	// ObserveRequest records one transport call.
	ObserveRequest(op string, elapsed time.Duration, err error)

	// ObserveTick records the outcome of one poll tick.
	ObserveTick(outcome string)

	// ObserveStale records a result discarded by the stale-response
	// guard.
	ObserveStale(op string)
}

// Noop is a Recorder that drops everything.
type Noop struct{}

// ObserveRequest implements Recorder.
func (Noop) ObserveRequest(string, time.Duration, error) {}

// ObserveTick implements Recorder.
func (Noop) ObserveTick(string) {}

// ObserveStale implements Recorder.
func (Noop) ObserveStale(string) {}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}

	return r
}

// Prometheus is a Recorder backed by prometheus collectors.
type Prometheus struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	ticks    *prometheus.CounterVec
	stale    *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them on a fresh
// registry, so several instances can live in one process.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Transport calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_seconds",
			Help:      "Transport call latency by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "ticks_total",
			Help:      "Poll ticks by outcome.",
		}, []string{"outcome"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Results discarded because the thread changed.",
		}, []string{"op"}),
	}

	p.registry.MustRegister(p.requests, p.latency, p.ticks, p.stale)

	return p
}

// ObserveRequest implements Recorder.
func (p *Prometheus) ObserveRequest(op string, elapsed time.Duration,
	err error) {

	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}

	p.requests.WithLabelValues(op, outcome).Inc()
	p.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveTick implements Recorder.
func (p *Prometheus) ObserveTick(outcome string) {
	p.ticks.WithLabelValues(outcome).Inc()
}

// ObserveStale implements Recorder.
func (p *Prometheus) ObserveStale(op string) {
	p.stale.WithLabelValues(op).Inc()
}

// Registry returns the private registry the collectors live on.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Ensure Prometheus and Noop implement Recorder at compile time.
var (
	_ Recorder = (*Prometheus)(nil)
	_ Recorder = Noop{}
)
