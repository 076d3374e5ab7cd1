// Package wait turns asynchronous backend state transitions into a bounded
// synchronous wait.
package wait

import (
	"context"
	"time"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
)

// Condition is polled until it reports true. A non-nil error is a failed
// probe, not a not-yet-true one, and ends the wait immediately.
type Condition func(ctx context.Context) (bool, error)

// Options bounds a wait. Zero values fall back to configs.Defaults.Timeouts.
type Options struct {
	Timeout time.Duration // maximum total wait
	Delay   time.Duration // pause between polls
	Message string        // used in the timeout error
}

// Result describes a completed wait.
type Result struct {
	Polls   int
	Elapsed time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = configs.Defaults.Timeouts.Wait()
	}
	if o.Delay <= 0 {
		o.Delay = configs.Defaults.Timeouts.WaitDelay()
	}
	if o.Message == "" {
		o.Message = "wait for condition"
	}
	return o
}

// For polls cond immediately and then every opts.Delay until it returns true
// or opts.Timeout has elapsed. On expiry it returns a mgmterr timeout error
// carrying opts.Message and the elapsed time; no poll happens after that.
// Errors returned by cond are passed through unchanged without retrying.
// Cancelling ctx or reaching its deadline ends the wait early with a timeout
// error that wraps ctx.Err().
func For(ctx context.Context, cond Condition, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := time.Now()

	var res Result
	for {
		ok, err := cond(ctx)
		res.Polls++
		res.Elapsed = time.Since(start)
		if err != nil {
			return res, err
		}
		if ok {
			return res, nil
		}

		remaining := opts.Timeout - res.Elapsed
		if remaining <= 0 {
			return res, mgmterr.Timeout(opts.Message, res.Elapsed)
		}

		sleep := opts.Delay
		if sleep > remaining {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Elapsed = time.Since(start)
			e := mgmterr.Timeout(opts.Message, res.Elapsed)
			e.Err = ctx.Err()
			return res, e
		case <-timer.C:
		}
	}
}
