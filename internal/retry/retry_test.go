package retry

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPermanent = errors.New("permanent failure")

func TestExecuteSucceedsAfterTransientFailures(t *testing.T) {
	p := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond), WithMaxDelay(10*time.Millisecond))

	attempts := 0
	err := p.Execute(context.Background(), func(_ context.Context) error {
		attempts++
		if attempts < 3 {
			return &net.OpError{Op: "dial"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	p := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	attempts := 0
	err := p.Execute(context.Background(), func(_ context.Context) error {
		attempts++
		return errPermanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	p := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithMaxDelay(5*time.Millisecond))

	attempts := 0
	err := p.Execute(context.Background(), func(_ context.Context) error {
		attempts++
		return &net.OpError{Op: "dial"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteStopsOnCanceledContext(t *testing.T) {
	p := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := p.Execute(ctx, func(_ context.Context) error {
		attempts++
		return &net.OpError{Op: "dial"}
	})

	require.Error(t, err)
	assert.Equal(t, 0, attempts)
}

func TestBackoffIsIncreasingAndCapped(t *testing.T) {
	p := New(WithInitialDelay(10*time.Millisecond), WithMaxDelay(50*time.Millisecond), WithMultiplier(3))

	d0 := p.backoff(0, nil, nil)
	d1 := p.backoff(1, nil, nil)
	d2 := p.backoff(2, nil, nil)
	d3 := p.backoff(3, nil, nil)

	assert.Less(t, d0, d1)
	assert.Less(t, d1, d2)
	assert.LessOrEqual(t, d2, p.maxDelay)
	assert.Equal(t, p.maxDelay, d3)
}

func TestMultiplierBelowOneIsCoerced(t *testing.T) {
	p := New(WithMultiplier(0.5))
	assert.Equal(t, 2.0, p.multiplier)
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(&net.OpError{Op: "dial"}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errPermanent))
	assert.False(t, IsTransient(nil))
}
