package notify

import (
	"context"
	"errors"

	"eventdigest/internal/digest"
	appLog "eventdigest/internal/log"
)

// Fanout publishes to every publisher in order and joins their errors.
type Fanout []digest.Publisher

func (f Fanout) Publish(ctx context.Context, destination string, p digest.Payload) error {
	var errs []error
	for _, pub := range f {
		if err := pub.Publish(ctx, destination, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort wraps a publisher whose failures are logged but never fail
// the run.
func BestEffort(name string, p digest.Publisher) digest.Publisher {
	return bestEffort{name: name, pub: p}
}

type bestEffort struct {
	name string
	pub  digest.Publisher
}

func (b bestEffort) Publish(ctx context.Context, destination string, p digest.Payload) error {
	if err := b.pub.Publish(ctx, destination, p); err != nil {
		appLog.Warn("secondary publisher failed", "publisher", b.name, "err", err.Error())
	}
	return nil
}
