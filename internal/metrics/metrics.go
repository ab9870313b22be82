// Package metrics exposes run statistics of the digest engine to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Message outcomes recorded per scanned message.
const (
	OutcomeKept         = "kept"
	OutcomeSubtype      = "subtype"
	OutcomeMissingField = "missing_field"
	OutcomeBadDate      = "bad_date"
	OutcomePast         = "past"
	OutcomeClosed       = "closed"
)

// Run results.
const (
	RunPublished = "published"
	RunEmpty     = "empty"
	RunDryRun    = "dry_run"
	RunFailed    = "failed"
)

// Collector groups the engine's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	messages    *prometheus.CounterVec
	runs        *prometheus.CounterVec
	events      prometheus.Gauge
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// New creates the collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventdigest",
			Name:      "messages_total",
			Help:      "Scanned announcement messages by outcome.",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventdigest",
			Name:      "runs_total",
			Help:      "Digest runs by result.",
		}, []string{"result"}),
		events: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventdigest",
			Name:      "open_events",
			Help:      "Open events in the most recent digest.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventdigest",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a digest run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eventdigest",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without error.",
		}),
	}
	reg.MustRegister(c.messages, c.runs, c.events, c.duration, c.lastSuccess)
	return c
}

// Message records the outcome for one scanned message.
func (c *Collector) Message(outcome string) {
	if c == nil {
		return
	}
	c.messages.WithLabelValues(outcome).Inc()
}

// Run records a finished run.
func (c *Collector) Run(result string, events int, took time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(result).Inc()
	c.duration.Observe(took.Seconds())
	if result == RunFailed {
		return
	}
	c.events.Set(float64(events))
	c.lastSuccess.SetToCurrentTime()
}
