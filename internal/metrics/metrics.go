// Package metrics exposes the portfolio's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zachkp/cosmic-portfolio/internal/session"
)

const namespace = "portfolio"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	SessionEvents  *prometheus.CounterVec
	LoginAttempts  *prometheus.CounterVec
	OpenTabs       prometheus.Gauge
	DroppedChanges prometheus.Counter
	Visits         prometheus.Counter
}

// New registers every collector plus the go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		SessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by kind.",
		}, []string{"event"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_login_attempts_total",
			Help:      "Admin login attempts by result.",
		}, []string{"result"}),
		OpenTabs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tabs_open",
			Help:      "Browser tabs connected over the tab socket.",
		}),
		DroppedChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_changes_dropped_total",
			Help:      "Token store changes dropped because a tab was not reading.",
		}),
		Visits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_recorded_total",
			Help:      "Page visits written to the visitor log.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionEvents,
		m.LoginAttempts,
		m.OpenTabs,
		m.DroppedChanges,
		m.Visits,
	)
	return m
}

// ObserveSession counts a session event. It fits session.WithObserver.
func (m *Metrics) ObserveSession(ev session.Event) {
	m.SessionEvents.WithLabelValues(string(ev)).Inc()
}

// LoginResult counts an admin login attempt. result is "ok", "invalid" or
// "limited".
func (m *Metrics) LoginResult(result string) {
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
