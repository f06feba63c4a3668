package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	b := NewCircuitBreaker("test", 2, time.Minute)
	require.Equal(t, CircuitClosed, b.State())

	fail := func() error { return errBoom }

	require.ErrorIs(t, b.Call(fail), errBoom)
	require.Equal(t, CircuitClosed, b.State())

	require.ErrorIs(t, b.Call(fail), errBoom)
	require.Equal(t, CircuitOpen, b.State())
}

func TestCircuitBreakerFailsFastWhenOpen(t *testing.T) {
	b := NewCircuitBreaker("test", 1, time.Minute)
	require.Error(t, b.Call(func() error { return errBoom }))
	require.Equal(t, CircuitOpen, b.State())

	called := false
	err := b.Call(func() error {
		called = true
		return nil
	})

	require.False(t, called, "open circuit must not execute the call")
	var openErr *ErrCircuitOpen
	require.ErrorAs(t, err, &openErr)
	require.Equal(t, "test", openErr.Name)
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	require.Error(t, b.Call(func() error { return errBoom }))
	require.Equal(t, CircuitOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	// First call after the recovery timeout is attempted; success closes
	require.NoError(t, b.Call(func() error { return nil }))
	require.Equal(t, CircuitClosed, b.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	require.Error(t, b.Call(func() error { return errBoom }))

	time.Sleep(20 * time.Millisecond)

	require.ErrorIs(t, b.Call(func() error { return errBoom }), errBoom)
	require.Equal(t, CircuitOpen, b.State())
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewCircuitBreaker("test", 2, time.Minute)

	require.Error(t, b.Call(func() error { return errBoom }))
	require.NoError(t, b.Call(func() error { return nil }))
	require.Error(t, b.Call(func() error { return errBoom }))

	// One failure, then success, then one failure: never two in a row
	require.Equal(t, CircuitClosed, b.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	b := NewCircuitBreaker("test", 1, time.Minute)
	require.Error(t, b.Call(func() error { return errBoom }))
	require.Equal(t, CircuitOpen, b.State())

	b.Reset()
	require.Equal(t, CircuitClosed, b.State())
	require.NoError(t, b.Call(func() error { return nil }))
}

func TestCircuitBreakerStats(t *testing.T) {
	b := NewCircuitBreaker("summarizer", 5, time.Minute)
	require.NoError(t, b.Call(func() error { return nil }))
	require.Error(t, b.Call(func() error { return errBoom }))

	stats := b.Stats()
	require.Equal(t, "summarizer", stats["name"])
	require.Equal(t, string(CircuitClosed), stats["state"])
	require.Equal(t, 1, stats["failure_count"])
	require.Equal(t, 1, stats["success_count"])
	require.Equal(t, 2, stats["total_calls"])
	require.Contains(t, stats, "last_failure")
}
