package remote

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/dreamware/horde/internal/retry"
)

type call struct {
	name string
	args []string
}

// scriptedRunner replays a fixed sequence of results, repeating the last one.
type scriptedRunner struct {
	mu      sync.Mutex
	calls   []call
	results []runResult
	stdout  string
}

type runResult struct {
	code int
	err  error
}

func (r *scriptedRunner) Run(_ context.Context, name string, args []string, stdout, stderr io.Writer) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{name: name, args: args})
	io.WriteString(stdout, r.stdout)
	io.WriteString(stderr, "stderr line\n")

	res := r.results[len(r.results)-1]
	if len(r.calls) <= len(r.results) {
		res = r.results[len(r.calls)-1]
	}
	return res.code, res.err
}

func newTestExec(t *testing.T, attempts int, results ...runResult) (*Exec, *scriptedRunner) {
	t.Helper()
	policy := retry.New(attempts)
	policy.SetSleep(func(time.Duration) {})

	runner := &scriptedRunner{results: results}
	e := NewExec(t.TempDir()+"/logs", policy)
	e.SetRunner(runner)
	return e, runner
}

// TestRunReturnsExitCodeWithoutRetry verifies a clean non-zero exit is a result.
func TestRunReturnsExitCodeWithoutRetry(t *testing.T) {
	e, runner := newTestExec(t, 3, runResult{code: 1})

	code, err := e.Run(context.Background(), "h1", "test -d /tmp/horde/runtime")

	require.NoError(t, err)
	assert.Equal(t, 1, code)
	assert.Len(t, runner.calls, 1, "clean non-zero exit must not be retried")
}

// TestRunArguments checks the hardened ssh command line.
func TestRunArguments(t *testing.T) {
	e, runner := newTestExec(t, 1, runResult{code: 0})

	code, err := e.Run(context.Background(), "h1", "mkdir -p /tmp/horde")
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.Equal(t, "ssh", c.name)
	joined := strings.Join(c.args, " ")
	for _, opt := range []string{
		"UserKnownHostsFile=/dev/null",
		"StrictHostKeyChecking=no",
		"ConnectTimeout=300",
		"ServerAliveInterval=60",
		"TCPKeepAlive=yes",
		"LogLevel=quiet",
	} {
		assert.Contains(t, joined, opt)
	}
	assert.Equal(t, []string{"--", "h1", "mkdir -p /tmp/horde"}, c.args[len(c.args)-3:])
}

// TestRunHostNeverParsedAsOption keeps option-like hosts after "--".
func TestRunHostNeverParsedAsOption(t *testing.T) {
	e, runner := newTestExec(t, 1, runResult{code: 0})

	_, err := e.Run(context.Background(), "-oProxyCommand=sh", "true")
	require.NoError(t, err)
	_, err = e.Output(context.Background(), "-oProxyCommand=sh", "true")
	require.NoError(t, err)

	for _, c := range runner.calls {
		i := slices.Index(c.args, "-oProxyCommand=sh")
		require.Positive(t, i)
		assert.Equal(t, "--", c.args[i-1])
	}
}

// TestRunRetriesTransportFailures retries spawn errors and ssh's 255.
func TestRunRetriesTransportFailures(t *testing.T) {
	e, runner := newTestExec(t, 3,
		runResult{code: -1, err: errors.New("exec: \"ssh\": not found")},
		runResult{code: 255},
		runResult{code: 7},
	)

	code, err := e.Run(context.Background(), "h1", "true")

	require.NoError(t, err)
	assert.Equal(t, 7, code)
	assert.Len(t, runner.calls, 3)
}

// TestRunExhaustsAttempts propagates the last transport error.
func TestRunExhaustsAttempts(t *testing.T) {
	e, runner := newTestExec(t, 2, runResult{code: 255})

	_, err := e.Run(context.Background(), "h1", "true")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 255, exitErr.Code)
	assert.Equal(t, "h1", exitErr.Host)
	assert.Len(t, runner.calls, 2)
}

// TestRunAppendsToHostLog verifies output lands in <logDir>/<host>-ssh.log.
func TestRunAppendsToHostLog(t *testing.T) {
	e, runner := newTestExec(t, 1, runResult{code: 0})
	runner.stdout = "hello\n"

	_, err := e.Run(context.Background(), "h1", "echo hello")
	require.NoError(t, err)
	_, err = e.Run(context.Background(), "h1", "echo hello")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(e.LogPath("h1"), "/logs/h1-ssh.log"))
	data, err := os.ReadFile(e.LogPath("h1"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "hello\n"))
	assert.Equal(t, 2, strings.Count(string(data), "stderr line\n"))
}

// TestCopy treats any non-zero scp status as transient.
func TestCopy(t *testing.T) {
	t.Run("retries then succeeds", func(t *testing.T) {
		e, runner := newTestExec(t, 3, runResult{code: 1}, runResult{code: 0})

		err := e.Copy(context.Background(), "h2", "/tmp/x.torrent", "/tmp/horde/x.torrent")

		require.NoError(t, err)
		require.Len(t, runner.calls, 2)
		c := runner.calls[1]
		assert.Equal(t, "scp", c.name)
		assert.Equal(t, []string{"--", "/tmp/x.torrent", "h2:/tmp/horde/x.torrent"}, c.args[len(c.args)-3:])
		assert.Contains(t, c.args, "StrictHostKeyChecking=no")
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		e, runner := newTestExec(t, 3, runResult{code: 1})

		err := e.Copy(context.Background(), "h2", "/a", "/b")

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransport))
		assert.Len(t, runner.calls, 3)
	})
}

// TestOutput captures stdout and separates exit codes from transport errors.
func TestOutput(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		e, runner := newTestExec(t, 3, runResult{code: 0})
		runner.stdout = "/run/sr-mount/1234\n"

		out, err := e.Output(context.Background(), "h1", "df -P")

		require.NoError(t, err)
		assert.Equal(t, "/run/sr-mount/1234\n", out)
	})

	t.Run("non-zero exit", func(t *testing.T) {
		e, runner := newTestExec(t, 3, runResult{code: 1})

		_, err := e.Output(context.Background(), "h1", "df -P")

		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.False(t, errors.Is(err, ErrTransport))
		assert.Len(t, runner.calls, 1, "Output never retries on its own")
	})

	t.Run("transport", func(t *testing.T) {
		e, _ := newTestExec(t, 3, runResult{code: 255})

		_, err := e.Output(context.Background(), "h1", "df -P")

		assert.True(t, errors.Is(err, ErrTransport))
	})
}
