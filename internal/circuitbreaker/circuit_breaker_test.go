package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSource = errors.New("source down")

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(&Config{
		Name:             "crm",
		MaxFailures:      3,
		FailureThreshold: 0.5,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 2,
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func fail() error    { return errSource }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errSource)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open circuit must not call through")
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	require.Equal(t, StateOpen, cb.GetState())

	clock = clock.Add(2 * time.Minute)

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	clock = clock.Add(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errSource)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	clientErr := errors.New("404")
	cb := NewCircuitBreaker(&Config{
		Name:             "marketing",
		MaxFailures:      2,
		FailureThreshold: 0.5,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, clientErr) },
	})

	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return clientErr })
	}

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 0, cb.GetStats().Failures)
	assert.Equal(t, 5, cb.GetStats().Successes)
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager()

	a := m.GetOrCreate("crm", nil)
	b := m.GetOrCreate("crm", nil)
	c := m.GetOrCreate("marketing", DefaultConfig("ignored"))

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	stats := m.GetAllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "marketing", stats["marketing"].Name)
	assert.Equal(t, StateClosed, stats["crm"].State)
}
