package channel

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBackoffInitial = time.Second
	DefaultBackoffMax     = 30 * time.Second
)

// ExponentialBackoff returns a factory of jittered exponential policies that
// never give up on their own; only Close stops a reconnect loop.
func ExponentialBackoff(initial, maxDelay time.Duration) func() backoff.BackOff {
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxDelay
		b.Multiplier = 2
		b.RandomizationFactor = 0.5
		b.MaxElapsedTime = 0
		b.Reset()
		return b
	}
}
