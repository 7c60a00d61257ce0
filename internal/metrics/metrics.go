// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec

	OTPIssued          *prometheus.CounterVec
	OTPVerifications   *prometheus.CounterVec
	RecoveryTransition *prometheus.CounterVec
}

// New builds the collectors with a constant service label and registers
// them on reg.
func New(reg prometheus.Registerer, serviceName string) *Metrics {
	service := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests.",
				ConstLabels: service,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: service,
			},
			[]string{"method", "path"},
		),
		OTPIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "otp_issued_total",
				Help:        "One-time codes issued, by purpose.",
				ConstLabels: service,
			},
			[]string{"purpose"},
		),
		OTPVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "otp_verifications_total",
				Help:        "One-time code verification attempts, by purpose and outcome.",
				ConstLabels: service,
			},
			[]string{"purpose", "outcome"},
		),
		RecoveryTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "recovery_transitions_total",
				Help:        "Recovery request lifecycle events, by event type.",
				ConstLabels: service,
			},
			[]string{"event"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.OTPIssued,
		m.OTPVerifications,
		m.RecoveryTransition,
	)
	return m
}

// NewNop returns collectors that are not registered anywhere, for tests
// and tools that do not serve /metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "nop")
}
