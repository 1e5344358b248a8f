// Package metrics exposes Prometheus counters and gauges for pump sessions
// and the broker adapter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbridge_connect_attempts_total",
		Help: "Connect attempts per pump, by outcome",
	}, []string{"pump", "outcome"})

	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbridge_auth_failures_total",
		Help: "Authentication handshake failures per pump",
	}, []string{"pump", "reason"})

	CommandsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbridge_commands_issued_total",
		Help: "Commands written to a pump, by entity and outcome",
	}, []string{"pump", "entity", "outcome"})

	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbridge_reconnects_total",
		Help: "Reconnect attempts per pump",
	}, []string{"pump"})

	StateEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pumpbridge_state_events_total",
		Help: "State-change events emitted per pump",
	}, []string{"pump"})

	LinkUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pumpbridge_link_up",
		Help: "1 if a pump's session is authenticated and link-up, else 0",
	}, []string{"pump"})

	RuntimeTodayHours = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pumpbridge_runtime_today_hours",
		Help: "Accumulated powered-on hours for the current local day",
	}, []string{"pump"})
)

// Outcome label values shared across the counters above.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func IncConnectAttempt(pump string, ok bool) {
	ConnectAttempts.WithLabelValues(pump, outcome(ok)).Inc()
}

func IncAuthFailure(pump, reason string) {
	AuthFailures.WithLabelValues(pump, reason).Inc()
}

func IncCommand(pump, entity string, ok bool) {
	CommandsIssued.WithLabelValues(pump, entity, outcome(ok)).Inc()
}

func IncReconnect(pump string) {
	Reconnects.WithLabelValues(pump).Inc()
}

func IncStateEvent(pump string) {
	StateEvents.WithLabelValues(pump).Inc()
}

func SetLinkUp(pump string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	LinkUp.WithLabelValues(pump).Set(v)
}

func SetRuntimeTodayHours(pump string, hours float64) {
	RuntimeTodayHours.WithLabelValues(pump).Set(hours)
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}
