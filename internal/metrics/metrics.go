// Package metrics holds the prometheus collectors shared by the bus,
// the router and the transport.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pulse"

type Metrics struct {
	HookFires          *prometheus.CounterVec
	HookListenerErrors *prometheus.CounterVec
	StaticTimeouts     prometheus.Counter
	RPCMessages        *prometheus.CounterVec
	FloodDisconnects   prometheus.Counter
	Connections        *prometheus.GaugeVec
}

// New registers all collectors on reg. A nil reg leaves them unregistered,
// which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HookFires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "fires_total",
			Help:      "Hook fires by delivery type.",
		}, []string{"type"}),
		HookListenerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "listener_errors_total",
			Help:      "Listener failures by delivery type.",
		}, []string{"type"}),
		StaticTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "static_timeouts_total",
			Help:      "Static listeners that did not complete in time.",
		}),
		RPCMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "messages_total",
			Help:      "Inbound messages by namespace and outcome.",
		}, []string{"namespace", "outcome"}),
		FloodDisconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "flood_disconnects_total",
			Help:      "Connections closed for flooding.",
		}),
		Connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "connections",
			Help:      "Open connections by identity kind.",
		}, []string{"kind"}),
	}
}

func NewNop() *Metrics { return New(nil) }
