package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Authentication outcomes.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeRejected      = "rejected"
	OutcomeError         = "error"
)

// Directory password update results for ResetPassword.
const (
	DirectoryUpdated = "updated"
	DirectorySkipped = "skipped"
	DirectoryFailed  = "failed"
)

// Metrics counts authentication activity. A nil *Metrics records nothing.
type Metrics struct {
	authentications *prometheus.CounterVec
	provisioned     prometheus.Counter
	syncWarnings    *prometheus.CounterVec
	passwordResets  *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ldapauth",
			Name:      "authentications_total",
			Help:      "Authentication attempts by outcome.",
		}, []string{"outcome"}),
		provisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ldapauth",
			Name:      "provisioned_total",
			Help:      "Local user records created on first directory login.",
		}),
		syncWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ldapauth",
			Name:      "sync_warnings_total",
			Help:      "Attribute synchronization warnings by kind.",
		}, []string{"kind"}),
		passwordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ldapauth",
			Name:      "password_resets_total",
			Help:      "Password resets by directory update result.",
		}, []string{"directory"}),
	}

	if reg != nil {
		reg.MustRegister(m.authentications, m.provisioned, m.syncWarnings, m.passwordResets)
	}
	return m
}

func (m *Metrics) authentication(outcome string) {
	if m == nil {
		return
	}
	m.authentications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) provision() {
	if m == nil {
		return
	}
	m.provisioned.Inc()
}

func (m *Metrics) syncWarning(kind WarningKind) {
	if m == nil {
		return
	}
	m.syncWarnings.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) passwordReset(directory string) {
	if m == nil {
		return
	}
	m.passwordResets.WithLabelValues(directory).Inc()
}
