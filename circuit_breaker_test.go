package redisproto

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/redisproto/resp"
)

func TestNewCircuitBreakerConfig(t *testing.T) {
	newBreaker := NewCircuitBreakerConfig(1, time.Minute, time.Minute)

	cb := newBreaker("server1:6379")
	require.NotNil(t, cb)
	assert.Equal(t, "server1:6379", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute)("server1:6379")

	boom := errors.New("boom")
	for range 3 {
		_, err := cb.Execute(func() (*resp.Response, error) { return nil, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	// Requests now fail fast without running the function
	_, err := cb.Execute(func() (*resp.Response, error) {
		t.Fatal("function should not run while the breaker is open")
		return nil, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute)("server1:6379")

	for range 10 {
		_, err := cb.Execute(func() (*resp.Response, error) { return &resp.Response{}, nil })
		require.NoError(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerToleratesFewFailures(t *testing.T) {
	// One failure among many successes stays under the failure ratio.
	cb := NewCircuitBreakerConfig(1, time.Minute, time.Minute)("server1:6379")

	boom := errors.New("boom")
	cb.Execute(func() (*resp.Response, error) { return nil, boom })
	for range 9 {
		_, err := cb.Execute(func() (*resp.Response, error) { return &resp.Response{}, nil })
		require.NoError(t, err)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestClientCircuitBreaker(t *testing.T) {
	// Nothing listens on this port: every request fails and trips the
	// breaker, after which requests fail fast.
	client, err := NewClient(NewStaticServers("127.0.0.1:1"), Config{
		MaxSize:           1,
		Dialer:            shortDialer(),
		NewCircuitBreaker: NewCircuitBreakerConfig(1, time.Minute, time.Minute),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ctx := context.Background()
	for range 3 {
		_, err := client.Get(ctx, "key")
		require.Error(t, err)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}

	_, err = client.Get(ctx, "key")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)

	stats := client.AllPoolStats()
	require.Len(t, stats, 1)
	assert.Equal(t, gobreaker.StateOpen, stats[0].CircuitBreakerState)
	assert.GreaterOrEqual(t, stats[0].CircuitBreakerCounts.ConsecutiveFailures, uint32(3))
}
