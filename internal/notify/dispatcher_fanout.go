package notify

import (
	"context"
	"errors"
)

// Fanout delivers each event to every configured dispatcher. A failing
// channel does not stop delivery to the others; errors are joined so the
// caller can log the full picture.
type Fanout struct {
	dispatchers []Dispatcher
}

// NewFanout builds a fanout over the given dispatchers. Nil entries are
// skipped so callers can pass optionally-configured channels directly.
func NewFanout(dispatchers ...Dispatcher) *Fanout {
	out := make([]Dispatcher, 0, len(dispatchers))
	for _, d := range dispatchers {
		if d != nil {
			out = append(out, d)
		}
	}
	return &Fanout{dispatchers: out}
}

// Dispatch implements Dispatcher.
func (f *Fanout) Dispatch(ctx context.Context, event Event) error {
	var errs []error
	for _, d := range f.dispatchers {
		if err := d.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
