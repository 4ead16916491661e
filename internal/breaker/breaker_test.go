package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(openDuration time.Duration) (*Breaker, *time.Time) {
	now := time.Now()
	b := New(Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenDuration:     openDuration,
	})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Failure()
		assert.Equal(t, StateClosed, b.State())
	}

	require.NoError(t, b.Allow())
	b.Failure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerShortCircuitsWhileOpen(t *testing.T) {
	b, now := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Failure()
	}
	require.Equal(t, StateOpen, b.State())

	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrOpen)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerPermitsSingleTrialAfterOpenDuration(t *testing.T) {
	b, now := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// Concurrent caller while the trial is outstanding.
	assert.ErrorIs(t, b.Allow(), ErrOpen)
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b, now := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Failure()
	}
	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())

	b.Success()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.ConsecutiveFailures())
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	b, now := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Failure()
	}
	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())

	b.Failure()
	require.Equal(t, StateOpen, b.State())

	// openedAt was reset, so the breaker rejects for a fresh OpenDuration.
	*now = now.Add(30 * time.Second)
	assert.ErrorIs(t, b.Allow(), ErrOpen)

	*now = now.Add(30 * time.Second)
	assert.NoError(t, b.Allow())
}

func TestBreakerDiscardReleasesTrialWithoutTransition(t *testing.T) {
	b, now := newTestBreaker(time.Minute)

	for i := 0; i < 3; i++ {
		b.Failure()
	}
	*now = now.Add(time.Minute)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	// Client-fault outcome: no state change, but the next caller gets the
	// trial slot.
	b.Discard()
	assert.Equal(t, StateHalfOpen, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(time.Minute)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistryKeysBreakersIndependently(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, OpenDuration: time.Minute})

	r.Get("openrouter/model-a").Failure()
	assert.Equal(t, StateOpen, r.Get("openrouter/model-a").State())
	assert.Equal(t, StateClosed, r.Get("gemini/model-b").State())

	// Same key returns the same instance.
	assert.Same(t, r.Get("openrouter/model-a"), r.Get("openrouter/model-a"))
}
