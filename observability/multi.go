package observability

import "context"

// MultiObserver forwards every event to each of its sinks, letting one
// engine feed several destinations at once. The CLI uses it to pair the
// stderr text log with an observer resolved from the registry.
type MultiObserver struct {
	sinks []Observer
}

// NewMultiObserver combines observers into a single fan-out sink. Nil
// entries are dropped, so optional observers can be passed unguarded.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	sinks := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			sinks = append(sinks, o)
		}
	}
	return &MultiObserver{sinks: sinks}
}

// OnEvent implements Observer by delivering the event to every sink in
// registration order.
func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, o := range m.sinks {
		o.OnEvent(ctx, event)
	}
}
