// Package retry provides a bounded retry-with-backoff wrapper usable by any
// fallible operation.
package retry

import (
	"context"
	"log"
	"time"
)

// Hook observes a failed attempt before the policy sleeps. It receives the
// operation name, the attempts still left, the error and the delay about to
// be slept. It cannot change what the policy does next.
type Hook func(op string, remaining int, err error, delay time.Duration)

// LogHook writes each failed attempt to the standard logger.
func LogHook(op string, remaining int, err error, delay time.Duration) {
	log.Printf("%s failed: %v (%d tries left, retrying in %s)", op, err, remaining, delay)
}

// Policy retries an operation up to MaxAttempts times, sleeping Delay after
// the first failure and multiplying the delay by Backoff after every sleep.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     float64
	Hook        Hook

	// sleep is swapped in tests to observe delays without waiting.
	sleep func(time.Duration)
}

// New returns a policy with the classic one second delay doubled per attempt.
func New(maxAttempts int) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		Delay:       time.Second,
		Backoff:     2,
	}
}

// WithHook returns a copy of p that reports failed attempts to hook.
func (p Policy) WithHook(hook Hook) *Policy {
	p.Hook = hook
	return &p
}

// SetSleep overrides how the policy waits between attempts. Tests use it to
// record delays instead of sleeping.
func (p *Policy) SetSleep(sleep func(time.Duration)) {
	p.sleep = sleep
}

// Do calls fn until it succeeds or the attempts are used up. The error of the
// final attempt is returned unchanged.
func (p *Policy) Do(ctx context.Context, op string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := p.Delay
	var err error
	for remaining := attempts - 1; remaining >= 0; remaining-- {
		if err = fn(); err == nil {
			return nil
		}
		if remaining == 0 || ctx.Err() != nil {
			break
		}
		if p.Hook != nil {
			p.Hook(op, remaining, err, delay)
		}
		sleep(delay)
		delay = time.Duration(float64(delay) * p.Backoff)
	}
	return err
}

// Value is Do for operations that also produce a result.
func Value[T any](ctx context.Context, p *Policy, op string, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
