// Package metrics holds the Prometheus collectors for extraction,
// verification and re-upload activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer; every method is then a no-op.
//
// Metrics:
//   - docverify_llm_attempts_total{provider,outcome}
//   - docverify_llm_request_duration_seconds{provider}
//   - docverify_extractions_total{category,outcome}
//   - docverify_verifications_total{status}
//   - docverify_reuploads_total{action,outcome}
type Metrics struct {
	LLMAttemptsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	ExtractionsTotal   *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec
	ReuploadsTotal     *prometheus.CounterVec
}

// New registers the collectors on reg. Use a fresh prometheus.NewRegistry()
// per test to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LLMAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docverify_llm_attempts_total",
				Help: "LLM extraction attempts by outcome",
			},
			[]string{"provider", "outcome"}, // ok, transport_failure, malformed_response
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docverify_llm_request_duration_seconds",
				Help:    "Wall-clock duration of single LLM calls",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 90},
			},
			[]string{"provider"},
		),
		ExtractionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docverify_extractions_total",
				Help: "Document extractions by category and outcome",
			},
			[]string{"category", "outcome"},
		),
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docverify_verifications_total",
				Help: "Verification results by status",
			},
			[]string{"status"},
		),
		ReuploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docverify_reuploads_total",
				Help: "Re-upload requests by action and outcome",
			},
			[]string{"action", "outcome"},
		),
	}
}

func (m *Metrics) LLMAttempt(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LLMAttemptsTotal.WithLabelValues(provider, outcome).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) Extraction(category, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(category, outcome).Inc()
}

func (m *Metrics) Verification(status string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Reupload(action, outcome string) {
	if m == nil {
		return
	}
	m.ReuploadsTotal.WithLabelValues(action, outcome).Inc()
}
