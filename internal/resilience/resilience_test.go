package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("busy"), http.StatusServiceUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), http.StatusBadGateway)
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fastRetry(), func(context.Context) error {
		calls++
		return NewTransientError(errors.New("down"), http.StatusBadGateway)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ReturnsValue(t *testing.T) {
	got, err := DoVal(context.Background(), fastRetry(), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", NewTransientError(errors.New("x"), 429))))
	assert.True(t, IsTransient(errors.New("read tcp: i/o timeout")))
	assert.False(t, IsTransient(errors.New("unauthorized")))
}

func TestIsTransientStatus(t *testing.T) {
	assert.True(t, IsTransientStatus(http.StatusTooManyRequests))
	assert.True(t, IsTransientStatus(http.StatusServiceUnavailable))
	assert.False(t, IsTransientStatus(http.StatusNotFound))
	assert.False(t, IsTransientStatus(http.StatusOK))
}

func TestBreaker_OpensAndRecovers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBreaker(BreakerConfig{Name: "test", FailureThreshold: 2, Cooldown: time.Minute, Clock: clock})
	failing := func(context.Context) error { return NewTransientError(errors.New("down"), 503) }
	ok := func(context.Context) error { return nil }
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, BreakerClosed, b.State())
	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, BreakerOpen, b.State())

	err := b.Execute(ctx, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: time.Second, Clock: clock})
	failing := func(context.Context) error { return NewTransientError(errors.New("down"), 503) }
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, failing))
	clock.Advance(time.Second)
	require.Error(t, b.Execute(ctx, failing))
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})
	require.Error(t, b.Execute(context.Background(), func(context.Context) error { return errors.New("bad input") }))
	assert.Equal(t, BreakerClosed, b.State())
}
