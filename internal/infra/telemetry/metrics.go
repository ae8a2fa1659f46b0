package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "board"

// AuthMetrics counts identity outcomes that are invisible at the HTTP layer.
type AuthMetrics struct {
	LoginOutcomes     *prometheus.CounterVec
	AllowanceOutcomes *prometheus.CounterVec
	SecurityEvents    *prometheus.CounterVec
	SessionsReaped    prometheus.Counter
}

// NewAuthMetrics registers the collectors, reusing any already registered with reg.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_outcomes_total",
		Help:      "OAuth login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	allowance, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "allowance_operations_total",
		Help:      "Vote allowance operations partitioned by operation, identity kind, and outcome.",
	}, []string{"operation", "identity_kind", "outcome"}))
	if err != nil {
		return nil, err
	}

	events, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "security_events_total",
		Help:      "Security events observed partitioned by kind, whether or not they were persisted.",
	}, []string{"kind"}))
	if err != nil {
		return nil, err
	}

	reaped, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_reaped_total",
		Help:      "Expired sessions deleted by the reaper.",
	}))
	if err != nil {
		return nil, err
	}

	return &AuthMetrics{
		LoginOutcomes:     logins,
		AllowanceOutcomes: allowance,
		SecurityEvents:    events,
		SessionsReaped:    reaped,
	}, nil
}

// LoginOutcome increments the login counter. Safe on a nil receiver.
func (m *AuthMetrics) LoginOutcome(outcome string) {
	if m == nil {
		return
	}
	m.LoginOutcomes.WithLabelValues(outcome).Inc()
}

// AllowanceOutcome increments the allowance counter. Safe on a nil receiver.
func (m *AuthMetrics) AllowanceOutcome(operation, identityKind, outcome string) {
	if m == nil {
		return
	}
	m.AllowanceOutcomes.WithLabelValues(operation, identityKind, outcome).Inc()
}

// SecurityEvent increments the security event counter. Safe on a nil receiver.
func (m *AuthMetrics) SecurityEvent(kind string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(kind).Inc()
}

// Reaped adds n to the reaped sessions counter. Safe on a nil receiver.
func (m *AuthMetrics) Reaped(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsReaped.Add(float64(n))
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(T)
			if !ok {
				var zero T
				return zero, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
			}
			return existing, nil
		}
		var zero T
		return zero, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}
