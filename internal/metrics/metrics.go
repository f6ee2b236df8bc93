// Package metrics wires session lifecycle and datagram throughput into
// Prometheus collectors, subscribed on the event bus rather than called
// directly from the session pipeline (spec.md §4.6, SPEC_FULL.md's
// management/observability addendum).
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wlkek/raknet-mitm-proxy/internal/events"
	"github.com/wlkek/raknet-mitm-proxy/internal/session"
)

// Registry holds the proxy's Prometheus collectors.
type Registry struct {
	DatagramsIn   *prometheus.CounterVec
	DatagramsOut  *prometheus.CounterVec
	BytesIn       *prometheus.CounterVec
	BytesOut      *prometheus.CounterVec
	StateChanges  *prometheus.CounterVec
	ActiveByState *prometheus.GaugeVec
}

// NewRegistry constructs and registers the proxy's collectors against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		DatagramsIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raknet_proxy_datagrams_in_total",
			Help: "UDP datagrams received, by origin.",
		}, []string{"origin"}),
		DatagramsOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raknet_proxy_datagrams_out_total",
			Help: "UDP datagrams sent, by destination.",
		}, []string{"destination"}),
		BytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raknet_proxy_bytes_in_total",
			Help: "Bytes received, by origin.",
		}, []string{"origin"}),
		BytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raknet_proxy_bytes_out_total",
			Help: "Bytes sent, by destination.",
		}, []string{"destination"}),
		StateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "raknet_proxy_session_state_changes_total",
			Help: "Session state transitions, by resulting state.",
		}, []string{"state"}),
		ActiveByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "raknet_proxy_sessions_active",
			Help: "Currently active sessions, by state.",
		}, []string{"state"}),
	}
	reg.MustRegister(r.DatagramsIn, r.DatagramsOut, r.BytesIn, r.BytesOut, r.StateChanges, r.ActiveByState)
	return r
}

// ObserveDataIn subscribes data-in counters on bus for the named origin.
func (r *Registry) ObserveDataIn(bus *events.Bus, origin string) {
	bus.Subscribe(events.KindDataIn, func(ctx context.Context, ev *events.Event) error {
		data, _ := ev.Payload.([]byte)
		r.DatagramsIn.WithLabelValues(origin).Inc()
		r.BytesIn.WithLabelValues(origin).Add(float64(len(data)))
		return nil
	})
}

// ObserveDataOut subscribes data-out counters on bus for the named
// destination.
func (r *Registry) ObserveDataOut(bus *events.Bus, destination string) {
	bus.Subscribe(events.KindDataOut, func(ctx context.Context, ev *events.Event) error {
		data, _ := ev.Payload.([]byte)
		r.DatagramsOut.WithLabelValues(destination).Inc()
		r.BytesOut.WithLabelValues(destination).Add(float64(len(data)))
		return nil
	})
}

// ObserveState subscribes the state-transition counter on bus.
func (r *Registry) ObserveState(bus *events.Bus) {
	bus.Subscribe(events.KindState, func(ctx context.Context, ev *events.Event) error {
		st, ok := ev.Payload.(session.State)
		if !ok {
			return nil
		}
		r.StateChanges.WithLabelValues(st.String()).Inc()
		return nil
	})
}
