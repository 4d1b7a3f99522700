package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOutage = NewTransientError(errors.New("geocoder returned 503"), 503)

func fail(_ context.Context) (int, error)    { return 0, errOutage }
func succeed(_ context.Context) (int, error) { return 1, nil }

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("census", CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		_, err := ExecuteVal(ctx, cb, fail)
		require.ErrorIs(t, err, errOutage)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	calls := 0
	_, err := ExecuteVal(ctx, cb, func(_ context.Context) (int, error) {
		calls++
		return 0, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCircuitOpen))
	assert.Contains(t, err.Error(), "census")
	assert.Zero(t, calls)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, fail)
	v, err := ExecuteVal(ctx, cb, succeed)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(11 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	_, err := ExecuteVal(ctx, cb, succeed)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(1, 10*time.Second)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, fail)
	*now = now.Add(11 * time.Second)
	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := ExecuteVal(ctx, cb, succeed)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_ShouldTripOnlyTransient(t *testing.T) {
	cb := NewCircuitBreaker("google", FromCircuitConfig(1, time.Minute))
	ctx := context.Background()

	_, err := ExecuteVal(ctx, cb, func(_ context.Context) (int, error) {
		return 0, errors.New("REQUEST_DENIED: invalid key")
	})
	require.Error(t, err)
	assert.Equal(t, CircuitClosed, cb.State())

	_, _ = ExecuteVal(ctx, cb, fail)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_ResetAndStateChange(t *testing.T) {
	var changes [][2]CircuitState
	cb := NewCircuitBreaker("census", CircuitBreakerConfig{
		FailureThreshold: 1,
		OnStateChange: func(from, to CircuitState) {
			changes = append(changes, [2]CircuitState{from, to})
		},
	})

	_, _ = ExecuteVal(context.Background(), cb, fail)
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, [][2]CircuitState{{CircuitClosed, CircuitOpen}, {CircuitOpen, CircuitClosed}}, changes)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("census", CircuitBreakerConfig{FailureThreshold: 1000})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = ExecuteVal(context.Background(), cb, fail)
			} else {
				_, _ = ExecuteVal(context.Background(), cb, succeed)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1})
	census := sb.Get("census")
	assert.Same(t, census, sb.Get("census"))
	assert.NotSame(t, census, sb.Get("google"))

	_, _ = ExecuteVal(context.Background(), census, fail)
	states := sb.States()
	assert.Equal(t, CircuitOpen, states["census"])
	assert.Equal(t, CircuitClosed, states["google"])
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
