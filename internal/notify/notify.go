package notify

import (
	"context"

	"github.com/mcoot/wordgroups/internal/model"
)

// Notifier delivers round events to players. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event model.Event)
}

// Multi forwards every event to each notifier in order
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event model.Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

// Func adapts a plain function to Notifier
type Func func(ctx context.Context, event model.Event)

func (f Func) Notify(ctx context.Context, event model.Event) {
	f(ctx, event)
}
