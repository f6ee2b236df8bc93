package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/wlkek/raknet-mitm-proxy/internal/events"
	"github.com/wlkek/raknet-mitm-proxy/internal/session"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveDataInCountsBytesAndDatagrams(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	bus := events.NewBus()
	r.ObserveDataIn(bus, "client")

	if _, _, err := bus.Dispatch(context.Background(), events.KindDataIn, []byte("hello")); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := counterValue(t, r.DatagramsIn.WithLabelValues("client")); got != 1 {
		t.Fatalf("expected 1 datagram counted, got %v", got)
	}
	if got := counterValue(t, r.BytesIn.WithLabelValues("client")); got != 5 {
		t.Fatalf("expected 5 bytes counted, got %v", got)
	}
}

func TestObserveStateCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)
	bus := events.NewBus()
	r.ObserveState(bus)

	if _, _, err := bus.Dispatch(context.Background(), events.KindState, session.Online); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := counterValue(t, r.StateChanges.WithLabelValues("online")); got != 1 {
		t.Fatalf("expected 1 state change counted, got %v", got)
	}
}
