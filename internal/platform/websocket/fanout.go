package websocket

import (
	"context"
	"errors"
)

// Fanout publishes each event to every non-nil publisher and joins their
// errors. One failing publisher does not stop delivery to the others.
type Fanout []EventPublisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
