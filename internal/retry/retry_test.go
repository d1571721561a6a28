package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hookCall struct {
	op        string
	remaining int
	err       error
	delay     time.Duration
}

// TestPolicyAlwaysFailing verifies k invocations and the d, d*b, d*b^2 delays.
func TestPolicyAlwaysFailing(t *testing.T) {
	boom := errors.New("connection refused")
	var slept []time.Duration
	var hooks []hookCall

	p := &Policy{
		MaxAttempts: 4,
		Delay:       100 * time.Millisecond,
		Backoff:     3,
		Hook: func(op string, remaining int, err error, delay time.Duration) {
			hooks = append(hooks, hookCall{op, remaining, err, delay})
		},
	}
	p.SetSleep(func(d time.Duration) { slept = append(slept, d) })

	calls := 0
	err := p.Do(context.Background(), "ssh", func() error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Same(t, boom, err, "final error must propagate unchanged")
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		300 * time.Millisecond,
		900 * time.Millisecond,
	}, slept)

	require.Len(t, hooks, 3)
	assert.Equal(t, hookCall{"ssh", 3, boom, 100 * time.Millisecond}, hooks[0])
	assert.Equal(t, hookCall{"ssh", 2, boom, 300 * time.Millisecond}, hooks[1])
	assert.Equal(t, hookCall{"ssh", 1, boom, 900 * time.Millisecond}, hooks[2])
}

// TestPolicySucceedsAfterFailures stops retrying at the first success.
func TestPolicySucceedsAfterFailures(t *testing.T) {
	p := New(5)
	var slept []time.Duration
	p.SetSleep(func(d time.Duration) { slept = append(slept, d) })

	calls := 0
	err := p.Do(context.Background(), "scp", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

// TestPolicySingleAttempt never sleeps and never calls the hook.
func TestPolicySingleAttempt(t *testing.T) {
	for _, attempts := range []int{1, 0, -3} {
		hooked := false
		p := New(attempts).WithHook(func(string, int, error, time.Duration) { hooked = true })
		p.SetSleep(func(time.Duration) { t.Fatal("unexpected sleep") })

		calls := 0
		err := p.Do(context.Background(), "op", func() error {
			calls++
			return errors.New("nope")
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls, "attempts=%d", attempts)
		assert.False(t, hooked)
	}
}

// TestValue returns the result of the successful attempt.
func TestValue(t *testing.T) {
	p := New(3)
	p.SetSleep(func(time.Duration) {})

	calls := 0
	v, err := Value(context.Background(), p, "discover", func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("empty output")
		}
		return "/run/sr-mount/abc", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "/run/sr-mount/abc", v)
	assert.Equal(t, 2, calls)
}

// TestWithHookCopies leaves the receiver untouched.
func TestWithHookCopies(t *testing.T) {
	base := New(2)
	hooked := base.WithHook(func(string, int, error, time.Duration) {})

	assert.Nil(t, base.Hook)
	assert.NotNil(t, hooked.Hook)
	assert.Equal(t, base.MaxAttempts, hooked.MaxAttempts)
}
