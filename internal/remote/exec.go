// Package remote runs commands on and copies files to fleet hosts through the
// system OpenSSH client.
//
// Two kinds of failure are kept apart. A transport failure means ssh or scp
// could not do its job (no route, refused connection, authentication) and is
// retried by the configured policy; once the attempts are spent it comes back
// as an error matching ErrTransport. A remote command that ran and exited
// non-zero is a normal result: Run returns the exit code and no error, and
// never retries it.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dreamware/horde/internal/retry"
)

// ErrTransport marks failures of the ssh/scp channel itself.
var ErrTransport = errors.New("remote transport failure")

// sshTransportExit is the status ssh reserves for its own errors.
const sshTransportExit = 255

// hardening is applied to every ssh and scp invocation: no host key
// persistence, a long connect timeout, keep-alive probing and quiet logging.
var hardening = []string{
	"-o", "UserKnownHostsFile=/dev/null",
	"-o", "StrictHostKeyChecking=no",
	"-o", "ConnectTimeout=300",
	"-o", "ServerAliveInterval=60",
	"-o", "TCPKeepAlive=yes",
	"-o", "LogLevel=quiet",
}

// ExitError reports a process that exited with a non-zero status.
type ExitError struct {
	Host string
	Op   string
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s %s: exit status %d", e.Op, e.Host, e.Code)
}

// Runner starts a local process and waits for it. It returns the exit code,
// and an error only when the process could not be run at all.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (int, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Exec is the ssh/scp backed remote executor. It is safe for concurrent use
// as long as each host is driven by a single goroutine, which keeps every
// per-host log file single-writer.
type Exec struct {
	logDir string
	policy *retry.Policy
	runner Runner
}

// NewExec returns an executor logging to logDir and retrying transport
// failures with policy.
func NewExec(logDir string, policy *retry.Policy) *Exec {
	return &Exec{logDir: logDir, policy: policy, runner: execRunner{}}
}

// SetRunner replaces the process runner. Tests use it to stand in for ssh.
func (e *Exec) SetRunner(r Runner) {
	e.runner = r
}

// LogPath is the file collecting all remote output for host.
func (e *Exec) LogPath(host string) string {
	name := strings.ReplaceAll(host, string(os.PathSeparator), "_")
	return filepath.Join(e.logDir, name+"-ssh.log")
}

func (e *Exec) openLog(host string) (*os.File, error) {
	if err := os.MkdirAll(e.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(e.LogPath(host), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Run executes command on host and returns its exit status.
func (e *Exec) Run(ctx context.Context, host, command string) (int, error) {
	return retry.Value(ctx, e.policy, "ssh "+host, func() (int, error) {
		f, err := e.openLog(host)
		if err != nil {
			return 0, err
		}
		defer f.Close()

		code, err := e.runner.Run(ctx, "ssh", sshArgs(host, command), f, f)
		if err != nil {
			return 0, fmt.Errorf("%w: ssh %s: %w", ErrTransport, host, err)
		}
		if code == sshTransportExit {
			return 0, fmt.Errorf("%w: %w", ErrTransport, &ExitError{Host: host, Op: "ssh", Code: code})
		}
		return code, nil
	})
}

// Copy sends localPath to host:remotePath. Any non-zero scp status is treated
// as a transport failure.
func (e *Exec) Copy(ctx context.Context, host, localPath, remotePath string) error {
	return e.policy.Do(ctx, "scp "+host, func() error {
		f, err := e.openLog(host)
		if err != nil {
			return err
		}
		defer f.Close()

		code, err := e.runner.Run(ctx, "scp", scpArgs(host, localPath, remotePath), f, f)
		if err != nil {
			return fmt.Errorf("%w: scp %s: %w", ErrTransport, host, err)
		}
		if code != 0 {
			return fmt.Errorf("%w: %w", ErrTransport, &ExitError{Host: host, Op: "scp", Code: code})
		}
		return nil
	})
}

// Output runs command once and returns its standard output. Stderr goes to
// the host log. A non-zero exit is reported as an *ExitError; callers that
// want retries wrap Output in their own policy.
func (e *Exec) Output(ctx context.Context, host, command string) (string, error) {
	f, err := e.openLog(host)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var out bytes.Buffer
	code, err := e.runner.Run(ctx, "ssh", sshArgs(host, command), &out, f)
	if err != nil {
		return "", fmt.Errorf("%w: ssh %s: %w", ErrTransport, host, err)
	}
	if code == sshTransportExit {
		return "", fmt.Errorf("%w: %w", ErrTransport, &ExitError{Host: host, Op: "ssh", Code: code})
	}
	if code != 0 {
		return out.String(), &ExitError{Host: host, Op: "ssh", Code: code}
	}
	return out.String(), nil
}

// "--" ends option parsing so a host can never be taken for a flag.
func sshArgs(host, command string) []string {
	args := append([]string{}, hardening...)
	return append(args, "--", host, command)
}

func scpArgs(host, localPath, remotePath string) []string {
	args := append([]string{}, hardening...)
	return append(args, "--", localPath, host+":"+remotePath)
}
