package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatchRunsInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int
	bus.Subscribe(KindDataIn, func(ctx context.Context, ev *Event) error {
		order = append(order, 1)
		return nil
	})
	bus.Subscribe(KindDataIn, func(ctx context.Context, ev *Event) error {
		order = append(order, 2)
		return nil
	})
	bus.Subscribe(KindDataIn, func(ctx context.Context, ev *Event) error {
		order = append(order, 3)
		return nil
	})

	_, cancelled, err := bus.Dispatch(context.Background(), KindDataIn, []byte("x"))
	if err != nil || cancelled {
		t.Fatalf("unexpected cancel=%v err=%v", cancelled, err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("handlers did not run in registration order: %v", order)
	}
}

func TestDispatchCancelStopsChain(t *testing.T) {
	bus := NewBus()
	ran := false
	bus.Subscribe(KindState, func(ctx context.Context, ev *Event) error {
		ev.Cancel = true
		return nil
	})
	bus.Subscribe(KindState, func(ctx context.Context, ev *Event) error {
		ran = true
		return nil
	})

	_, cancelled, err := bus.Dispatch(context.Background(), KindState, "online")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancelled=true")
	}
	if ran {
		t.Fatal("handler after Cancel must not run")
	}
}

func TestDispatchPayloadReplacementPropagates(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(KindBedrockOut, func(ctx context.Context, ev *Event) error {
		ev.Payload = []byte("replaced")
		return nil
	})
	var seen []byte
	bus.Subscribe(KindBedrockOut, func(ctx context.Context, ev *Event) error {
		seen = ev.Payload.([]byte)
		return nil
	})

	out, _, err := bus.Dispatch(context.Background(), KindBedrockOut, []byte("original"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(seen) != "replaced" {
		t.Fatalf("downstream handler saw %q, want replaced", seen)
	}
	if string(out.([]byte)) != "replaced" {
		t.Fatalf("dispatch returned %q, want replaced", out)
	}
}

func TestDispatchErrorStopsChainAndPropagates(t *testing.T) {
	bus := NewBus()
	wantErr := errors.New("boom")
	ran := false
	bus.Subscribe(KindDataOut, func(ctx context.Context, ev *Event) error {
		return wantErr
	})
	bus.Subscribe(KindDataOut, func(ctx context.Context, ev *Event) error {
		ran = true
		return nil
	})

	_, cancelled, err := bus.Dispatch(context.Background(), KindDataOut, nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wantErr, got %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancelled=true on error")
	}
	if ran {
		t.Fatal("handler after error must not run")
	}
}
