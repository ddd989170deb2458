package channel

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_DefaultWindow(t *testing.T) {
	b := ExponentialBackoff(DefaultBackoffInitial, DefaultBackoffMax)()

	first := b.NextBackOff()
	require.GreaterOrEqual(t, first, 500*time.Millisecond)
	require.LessOrEqual(t, first, 1500*time.Millisecond)

	// jitter is +/-50% around an interval capped at 30s
	for i := 0; i < 100; i++ {
		d := b.NextBackOff()
		require.NotEqual(t, backoff.Stop, d, "attempt %d", i)
		require.LessOrEqual(t, d, 45*time.Second, "attempt %d", i)
		require.Positive(t, d)
	}
}

func TestExponentialBackoff_ClampsArguments(t *testing.T) {
	b := ExponentialBackoff(0, 0)()
	d := b.NextBackOff()
	require.GreaterOrEqual(t, d, 500*time.Millisecond)
	require.LessOrEqual(t, d, 1500*time.Millisecond)

	// a maximum below the initial delay is raised to it
	b = ExponentialBackoff(2*time.Second, time.Second)()
	for i := 0; i < 20; i++ {
		require.LessOrEqual(t, b.NextBackOff(), 3*time.Second)
	}
}
