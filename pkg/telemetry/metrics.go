package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides the shared Prometheus metrics.
var Module = fx.Provide(NewMetrics)

// Metrics exposes Prometheus observability primitives for the platform.
type Metrics struct {
	mutations     *prometheus.CounterVec
	authDenials   *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// NewMetrics registers and returns Prometheus metrics.
func NewMetrics() *Metrics {
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propbase_mutations_total",
		Help: "Counts aggregate mutations by entity, operation, and outcome.",
	}, []string{"entity", "operation", "outcome"})

	authDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propbase_authorization_denials_total",
		Help: "Counts authorization denials by permission code.",
	}, []string{"code"})

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propbase_tokens_issued_total",
		Help: "Counts issued tokens by type.",
	}, []string{"type"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "propbase_notifications_total",
		Help: "Counts notification deliveries by event and status.",
	}, []string{"event", "status"})

	prometheus.MustRegister(mutations, authDenials, tokensIssued, notifications)

	return &Metrics{
		mutations:     mutations,
		authDenials:   authDenials,
		tokensIssued:  tokensIssued,
		notifications: notifications,
	}
}

func (m *Metrics) ObserveMutation(entity, operation, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(entity, operation, outcome).Inc()
}

func (m *Metrics) ObserveAuthDenial(code string) {
	if m == nil {
		return
	}
	m.authDenials.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveTokenIssued(tokenType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(tokenType).Inc()
}

func (m *Metrics) ObserveNotification(event, status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(event, status).Inc()
}
