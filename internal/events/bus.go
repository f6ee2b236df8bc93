// Package events implements the pre-dispatch hook bus spec.md §4.6
// describes: subscribers for data-in, data-out, bedrock-in, bedrock-out
// and state register against a Bus and are awaited, in registration
// order, before the corresponding pipeline stage proceeds. Any
// subscriber may cancel the event, and any subscriber may replace the
// payload for the remaining chain and the pipeline stage itself.
package events

import "context"

// Kind names one of the five hook points spec.md §4.6 defines.
type Kind string

const (
	KindDataIn     Kind = "data-in"
	KindDataOut    Kind = "data-out"
	KindBedrockIn  Kind = "bedrock-in"
	KindBedrockOut Kind = "bedrock-out"
	KindState      Kind = "state"
)

// Event carries a mutable payload through a chain of handlers. Handlers
// that want to replace the payload for downstream handlers and for the
// pipeline stage itself set Payload before returning. Setting Cancel
// stops the chain immediately; later handlers for this dispatch do not
// run.
type Event struct {
	Kind    Kind
	Payload any
	Cancel  bool
}

// Handler observes or mutates an in-flight Event. It must not retain
// the Event beyond the call.
type Handler func(ctx context.Context, ev *Event) error

// Bus holds the ordered handler chain for each Kind. The zero value is
// ready to use.
type Bus struct {
	handlers map[Kind][]Handler
}

// NewBus returns a ready-to-use Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[Kind][]Handler)}
}

// Subscribe appends h to the chain for kind. Handlers run in the order
// they were subscribed.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	if b.handlers == nil {
		b.handlers = make(map[Kind][]Handler)
	}
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Dispatch runs the handler chain for kind over payload in registration
// order, awaiting each handler before calling the next. It returns the
// (possibly replaced) payload, whether the chain was cancelled, and any
// handler error. A handler error stops the chain, the same as Cancel.
func (b *Bus) Dispatch(ctx context.Context, kind Kind, payload any) (any, bool, error) {
	ev := &Event{Kind: kind, Payload: payload}
	for _, h := range b.handlers[kind] {
		if err := h(ctx, ev); err != nil {
			return ev.Payload, true, err
		}
		if ev.Cancel {
			return ev.Payload, true, nil
		}
	}
	return ev.Payload, false, nil
}
