// Package metrics implements dhcpstate.Recorder and session.Table's
// observability surface over github.com/prometheus/client_golang, exposed
// through Registry.Handler, which the orchestrator mounts at /metrics on the
// configured diagnostics address.
//
// No pack DHCP repo wires Prometheus itself; this is new code following the
// standard prometheus/client_golang registry/collector idiom, grounded on
// its direct-dependency presence across several pack manifests
// (sashakarcz-ironDHCP, tinkerbell-tinkerbell, and others).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every counter/gauge this co-server exposes and the
// prometheus.Registerer they're registered against.
type Registry struct {
	registry *prometheus.Registry

	messagesTotal     *prometheus.CounterVec
	repliesTotal      *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	sessionsEvicted   *prometheus.CounterVec
	matchTotal        *prometheus.CounterVec
	lockTimeoutsTotal prometheus.Counter
}

// New registers every metric against a fresh prometheus.Registry and
// returns the Registry wrapper.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		messagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcp_messages_total",
			Help: "DHCP messages received, by message type.",
		}, []string{"type"}),
		repliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcp_replies_total",
			Help: "DHCP replies sent, by message type.",
		}, []string{"type"}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dhcp_sessions_active",
			Help: "Sessions currently tracked in the session table.",
		}),
		sessionsEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcp_sessions_evicted_total",
			Help: "Sessions removed from the session table, by reason.",
		}, []string{"reason"}),
		matchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dhcp_match_total",
			Help: "Config Matcher outcomes, by outcome (hit/miss).",
		}, []string{"outcome"}),
		lockTimeoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dhcp_lock_timeouts_total",
			Help: "Session table lock acquisitions that exceeded the bounded wait.",
		}),
	}
	r.registry = reg
	return r
}

// ObserveMessage implements dhcpstate.Recorder.
func (r *Registry) ObserveMessage(msgType string) { r.messagesTotal.WithLabelValues(msgType).Inc() }

// ObserveReply implements dhcpstate.Recorder.
func (r *Registry) ObserveReply(msgType string) { r.repliesTotal.WithLabelValues(msgType).Inc() }

// ObserveMatch implements dhcpstate.Recorder.
func (r *Registry) ObserveMatch(outcome string) { r.matchTotal.WithLabelValues(outcome).Inc() }

// SetSessionsActive reports the session table's current size.
func (r *Registry) SetSessionsActive(n int) { r.sessionsActive.Set(float64(n)) }

// ObserveSessionEvicted implements session.Reaper's eviction hook.
func (r *Registry) ObserveSessionEvicted(reason string) {
	r.sessionsEvicted.WithLabelValues(reason).Inc()
}

// ObserveLockTimeout implements session.Table's lock-timeout hook.
func (r *Registry) ObserveLockTimeout() { r.lockTimeoutsTotal.Inc() }

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
