// Package metrics collects and exposes Prometheus metrics for the auth endpoints.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operations
const (
	OpRegister = "register"
	OpLogin    = "login"
)

// Outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Recorder is what the service layer reports to.
type Recorder interface {
	RecordAuth(operation, outcome string)
	RecordHashDuration(d time.Duration)
}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	authAttempts *prometheus.CounterVec
	hashDuration prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agriconnect_auth_attempts_total",
			Help: "Registration and login attempts by outcome",
		}, []string{"operation", "outcome"}),
		hashDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "agriconnect_password_hash_seconds",
			Help:    "Time spent deriving or verifying password hashes",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(c.authAttempts, c.hashDuration)
	return c
}

// RecordAuth counts one attempt.
func (c *Collector) RecordAuth(operation, outcome string) {
	c.authAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordHashDuration observes one hash derivation or verification.
func (c *Collector) RecordHashDuration(d time.Duration) {
	c.hashDuration.Observe(d.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAuth(string, string) {}

func (Nop) RecordHashDuration(time.Duration) {}
