package resolver

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"xdao.co/consign/ops"
	"xdao.co/consign/validation"
)

// Retrying retries connection-class errors of an inner resolver with
// exponential backoff. Other errors are returned at once.
type Retrying struct {
	Inner validation.ResolveWitness
	// MaxTries bounds the attempts per lookup; zero means 5.
	MaxTries uint
	// MaxElapsed bounds the total time per lookup; zero means 30s.
	MaxElapsed time.Duration
	// InitialInterval is the first backoff delay; zero means 200ms.
	InitialInterval time.Duration
}

var _ validation.ResolveWitness = Retrying{}

func (r Retrying) options() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	tries, elapsed := r.MaxTries, r.MaxElapsed
	if tries == 0 {
		tries = 5
	}
	if elapsed == 0 {
		elapsed = 30 * time.Second
	}
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(elapsed),
	}
}

func permanentUnlessConnection(err error) error {
	if err == nil || IsConnection(err) {
		return err
	}
	return backoff.Permanent(err)
}

func (r Retrying) ResolvePubWitnessOrd(ctx context.Context, id ops.WitnessID) (ops.WitnessStatus, error) {
	return backoff.Retry(ctx, func() (ops.WitnessStatus, error) {
		s, err := r.Inner.ResolvePubWitnessOrd(ctx, id)
		return s, permanentUnlessConnection(err)
	}, r.options()...)
}

func (r Retrying) ResolvePubWitness(ctx context.Context, id ops.WitnessID) (*ops.PubWitness, error) {
	return backoff.Retry(ctx, func() (*ops.PubWitness, error) {
		w, err := r.Inner.ResolvePubWitness(ctx, id)
		return w, permanentUnlessConnection(err)
	}, r.options()...)
}
