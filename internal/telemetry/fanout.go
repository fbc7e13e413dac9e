package telemetry

import (
	"context"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// Fanout delivers each event to every observer in order.
type Fanout []jsonwp.Observer

// NewFanout drops nil observers.
func NewFanout(observers ...jsonwp.Observer) Fanout {
	out := make(Fanout, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// CommandDispatched implements jsonwp.Observer.
func (f Fanout) CommandDispatched(ctx context.Context, ev jsonwp.CommandEvent) {
	for _, o := range f {
		o.CommandDispatched(ctx, ev)
	}
}
