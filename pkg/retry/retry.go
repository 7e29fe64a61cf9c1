// Package retry holds the two retry envelopes used by the chapter pipeline:
// a duration-bounded exponential policy for network calls and a small
// attempt-bounded policy for local filesystem work.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy builds a fresh backoff schedule for every Do call so a policy value
// can be shared between goroutines.
type Policy struct {
	Name       string
	newBackOff func() backoff.BackOff
}

// New builds a policy from a backoff factory. The factory decides both the
// wait between attempts and when to stop.
func New(name string, factory func() backoff.BackOff) Policy {
	return Policy{Name: name, newBackOff: factory}
}

// Network retries with exponential waits until maxElapsed has passed since
// the first attempt.
func Network(initial, maxInterval, maxElapsed time.Duration) Policy {
	return New("network", func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = maxElapsed
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.Reset()
		return b
	})
}

// LocalIO makes at most attempts tries with a constant wait between them.
func LocalIO(attempts int, wait time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return New("local-io", func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(wait), uint64(attempts-1))
	})
}

// Once never retries.
func Once() Policy {
	return New("once", func() backoff.BackOff { return &backoff.StopBackOff{} })
}

// Notify is called after a failed attempt that will be retried.
type Notify func(err error, attempt int, wait time.Duration)

// Do runs op until it succeeds, returns a Permanent error, the policy gives
// up, or ctx is done. The last error from op is returned unwrapped.
func (p Policy) Do(ctx context.Context, op func() error, notify Notify) error {
	factory := p.newBackOff
	if factory == nil {
		factory = Once().newBackOff
	}
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, backoff.WithContext(factory(), ctx), func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempt, wait)
		}
	})
}

// Permanent stops the retry loop immediately and surfaces err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
