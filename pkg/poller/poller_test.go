package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollUntilTimeoutAfterExactAttempts(t *testing.T) {
	var calls int32
	check := func(ctx context.Context) (string, bool, error) {
		atomic.AddInt32(&calls, 1)
		return "", false, nil
	}

	_, err := PollUntil[string](context.Background(), check, 3, time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeoutExceeded)

	var timeout *TimeoutExceededError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPollUntilReturnsFirstSuccess(t *testing.T) {
	calls := 0
	check := func(ctx context.Context) (int, bool, error) {
		calls++
		return calls * 10, calls == 2, nil
	}

	value, err := PollUntil[int](context.Background(), check, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 20, value)
	assert.Equal(t, 2, calls)
}

func TestPollUntilTransientErrorsKeepPolling(t *testing.T) {
	transient := errors.New("rpc unavailable")
	calls := 0
	check := func(ctx context.Context) (bool, bool, error) {
		calls++
		return false, false, transient
	}

	_, err := PollUntil[bool](context.Background(), check, 4, time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeoutExceeded)
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, 4, calls)
}

func TestPollUntilPermanentErrorStops(t *testing.T) {
	fatal := errors.New("intent not found")
	calls := 0
	check := func(ctx context.Context) (bool, bool, error) {
		calls++
		return false, false, Permanent(fatal)
	}

	_, err := PollUntil[bool](context.Background(), check, 4, time.Millisecond)
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestPollUntilCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	check := func(ctx context.Context) (bool, bool, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
		return false, false, nil
	}

	_, err := PollUntil[bool](ctx, check, 100, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPollUntilIndependentPolls(t *testing.T) {
	slowCtx, cancelSlow := context.WithCancel(context.Background())
	defer cancelSlow()

	slowDone := make(chan error, 1)
	go func() {
		_, err := PollUntil[bool](slowCtx, func(ctx context.Context) (bool, bool, error) {
			return false, false, nil
		}, 1000, 5*time.Millisecond)
		slowDone <- err
	}()

	value, err := PollUntil[string](context.Background(), func(ctx context.Context) (string, bool, error) {
		return "ready", true, nil
	}, 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ready", value)

	cancelSlow()
	select {
	case err := <-slowDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled poll did not return")
	}
}

func TestPollUntilRejectsZeroAttempts(t *testing.T) {
	_, err := PollUntil[bool](context.Background(), func(ctx context.Context) (bool, bool, error) {
		return true, true, nil
	}, 0, time.Millisecond)
	assert.Error(t, err)
}
