package zabbix

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetryExhaustsAttempts(t *testing.T) {
	const attempts = 3
	const delay = 30 * time.Millisecond

	var calls []time.Time
	rejected := &AuthError{User: "admin", Err: errors.New("Login name or password is incorrect.")}
	_, err := WithRetry(context.Background(), discardLogger(), attempts, delay, func(context.Context) (*Session, error) {
		calls = append(calls, time.Now())
		return nil, rejected
	})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	require.Len(t, calls, attempts)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), delay)
	}
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	n := 0
	v, err := WithRetry(context.Background(), discardLogger(), 5, time.Millisecond, func(context.Context) (int, error) {
		n++
		if n < 3 {
			return 0, errors.New("connection refused")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, n)
}

func TestWithRetryReturnsLastError(t *testing.T) {
	n := 0
	_, err := WithRetry(context.Background(), discardLogger(), 2, time.Millisecond, func(context.Context) (struct{}, error) {
		n++
		return struct{}{}, errors.New("failure " + string(rune('0'+n)))
	})
	assert.EqualError(t, err, "failure 2")
}

func TestWithRetryZeroAttemptsRunsOnce(t *testing.T) {
	n := 0
	_, err := WithRetry(context.Background(), discardLogger(), 0, time.Hour, func(context.Context) (int, error) {
		n++
		return 0, errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}

func TestWithRetryContextCancelStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := WithRetry(ctx, discardLogger(), 5, time.Hour, func(context.Context) (int, error) {
		n++
		return 0, errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
	assert.Less(t, time.Since(start), time.Second)
}
