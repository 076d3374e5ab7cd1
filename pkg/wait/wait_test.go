package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
)

// trueAfter returns a condition that reports true on the k-th poll.
func trueAfter(k int, calls *int) Condition {
	return func(ctx context.Context) (bool, error) {
		*calls++
		return *calls >= k, nil
	}
}

func TestFor_ImmediateSuccess(t *testing.T) {
	calls := 0
	res, err := For(context.Background(), trueAfter(1, &calls), Options{
		Timeout: time.Second,
		Delay:   50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Polls)
	assert.Equal(t, 1, calls)
	assert.Less(t, res.Elapsed, 50*time.Millisecond)
}

func TestFor_SucceedsAfterKPolls(t *testing.T) {
	for _, k := range []int{2, 3, 5} {
		calls := 0
		delay := 10 * time.Millisecond
		res, err := For(context.Background(), trueAfter(k, &calls), Options{
			Timeout: time.Duration(k+10) * delay * 5,
			Delay:   delay,
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Polls, k)
		assert.LessOrEqual(t, res.Polls, k+1)
		assert.Equal(t, res.Polls, calls)
		assert.GreaterOrEqual(t, res.Elapsed, time.Duration(k-1)*delay)
	}
}

func TestFor_TimeoutNeverTrue(t *testing.T) {
	calls := 0
	never := func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	}

	timeout := 120 * time.Millisecond
	start := time.Now()
	res, err := For(context.Background(), never, Options{
		Timeout: timeout,
		Delay:   25 * time.Millisecond,
		Message: "wait for vm1 running",
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, mgmterr.ErrTimeout)
	assert.Contains(t, err.Error(), "wait for vm1 running")
	assert.GreaterOrEqual(t, res.Elapsed, timeout)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Equal(t, calls, res.Polls)

	var me *mgmterr.Error
	require.ErrorAs(t, err, &me)
	assert.GreaterOrEqual(t, me.Elapsed, timeout)

	// No further polls after the timeout was reported.
	pollsAtTimeout := calls
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, pollsAtTimeout, calls)
}

func TestFor_PredicateErrorPropagatesWithoutRetry(t *testing.T) {
	probeErr := mgmterr.NotFound("vm", "vm1")
	calls := 0
	failing := func(ctx context.Context) (bool, error) {
		calls++
		return false, probeErr
	}

	res, err := For(context.Background(), failing, Options{
		Timeout: time.Second,
		Delay:   10 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Same(t, probeErr, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Polls)
	assert.NotErrorIs(t, err, mgmterr.ErrTimeout)
}

func TestFor_PredicateErrorAfterSomePolls(t *testing.T) {
	calls := 0
	boom := errors.New("probe exploded")
	cond := func(ctx context.Context) (bool, error) {
		calls++
		if calls == 3 {
			return false, boom
		}
		return false, nil
	}

	_, err := For(context.Background(), cond, Options{Timeout: time.Second, Delay: 5 * time.Millisecond})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestFor_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	never := func(ctx context.Context) (bool, error) { return false, nil }
	_, err := For(ctx, never, Options{Timeout: 5 * time.Second, Delay: 10 * time.Millisecond})
	require.ErrorIs(t, err, mgmterr.ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFor_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	never := func(ctx context.Context) (bool, error) { return false, nil }
	res, err := For(ctx, never, Options{Timeout: 5 * time.Second, Delay: 10 * time.Millisecond, Message: "vm up"})
	require.ErrorIs(t, err, mgmterr.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, mgmterr.CategoryTimeout, mgmterr.CategoryOf(err))
	assert.Contains(t, err.Error(), "vm up timed out after")
	assert.Less(t, res.Elapsed, 5*time.Second)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, configs.Defaults.Timeouts.Wait(), o.Timeout)
	assert.Equal(t, configs.Defaults.Timeouts.WaitDelay(), o.Delay)
	assert.NotEmpty(t, o.Message)

	o = Options{Timeout: time.Second, Delay: time.Millisecond, Message: "m"}.withDefaults()
	assert.Equal(t, time.Second, o.Timeout)
	assert.Equal(t, time.Millisecond, o.Delay)
	assert.Equal(t, "m", o.Message)
}
