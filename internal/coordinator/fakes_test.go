package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/horde/internal/cluster"
	"github.com/dreamware/horde/internal/config"
	"github.com/dreamware/horde/internal/retry"
)

// fakeRemote simulates a fleet reachable over ssh. Hosts become bootstrapped
// once the bundle is extracted on them.
type fakeRemote struct {
	mu           sync.Mutex
	runs         map[cluster.Host][]string
	copies       map[cluster.Host][]string
	bootstrapped map[cluster.Host]bool
	peerCode     map[cluster.Host]int
	output       map[cluster.Host]string
	outputErr    map[cluster.Host]error
	copyErr      map[cluster.Host]error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		runs:         make(map[cluster.Host][]string),
		copies:       make(map[cluster.Host][]string),
		bootstrapped: make(map[cluster.Host]bool),
		peerCode:     make(map[cluster.Host]int),
		output:       make(map[cluster.Host]string),
		outputErr:    make(map[cluster.Host]error),
		copyErr:      make(map[cluster.Host]error),
	}
}

func (f *fakeRemote) Run(_ context.Context, host, command string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[host] = append(f.runs[host], command)

	switch {
	case strings.HasPrefix(command, "test -d "):
		if f.bootstrapped[host] {
			return 0, nil
		}
		return 1, nil
	case strings.Contains(command, "tar zxf"):
		f.bootstrapped[host] = true
	case strings.Contains(command, " peer "):
		return f.peerCode[host], nil
	}
	return 0, nil
}

func (f *fakeRemote) Copy(_ context.Context, host, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.copyErr[host]; err != nil {
		return err
	}
	f.copies[host] = append(f.copies[host], remotePath)
	return nil
}

func (f *fakeRemote) Output(_ context.Context, host, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[host] = append(f.runs[host], command)
	if err := f.outputErr[host]; err != nil {
		return "", err
	}
	return f.output[host], nil
}

func (f *fakeRemote) count(host cluster.Host, match func(string) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.runs[host] {
		if match(c) {
			n++
		}
	}
	return n
}

func (f *fakeRemote) indexOf(host cluster.Host, match func(string) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.runs[host] {
		if match(c) {
			return i
		}
	}
	return -1
}

func (f *fakeRemote) runsOf(host cluster.Host) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs[host]...)
}

func (f *fakeRemote) copiesOf(host cluster.Host) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.copies[host]...)
}

func isPeer(c string) bool    { return strings.Contains(c, " peer ") }
func isReseed(c string) bool  { return strings.HasPrefix(c, "nohup ") && strings.Contains(c, "--seed") }
func isCleanup(c string) bool { return strings.HasPrefix(c, "rm -f ") }
func isSeedCopy(c string) bool { return strings.HasPrefix(c, "cp ") && strings.HasSuffix(c, ".seed") }

// fakeBuilder writes a placeholder descriptor.
type fakeBuilder struct {
	dir      string
	builds   atomic.Int32
	announce string
}

func (b *fakeBuilder) Build(file, announce string) (string, error) {
	b.builds.Add(1)
	b.announce = announce
	p := filepath.Join(b.dir, "horde-test.torrent")
	return p, os.WriteFile(p, []byte("d8:announce0:e"), 0o644)
}

type fakeTracker struct{ calls atomic.Int32 }

func (t *fakeTracker) Track(context.Context, int, string) error {
	t.calls.Add(1)
	return nil
}

type fakeSeeder struct{ calls atomic.Int32 }

func (s *fakeSeeder) Seed(context.Context, string, string) error {
	s.calls.Add(1)
	return nil
}

func testOptions(t *testing.T) config.Options {
	t.Helper()
	o := config.Default()
	o.Payload = "/srv/images/P"
	o.Destination = "/tmp/x"
	o.HostList = "h1,h2"
	o.RuntimeDir = "/opt/horde/runtime"
	o.ClientPath = "/opt/horde/horde-client"
	o.EntrypointPath = "/opt/horde/horde"
	o.DataFile = filepath.Join(t.TempDir(), "data")
	o.Attempts = 1
	require.NoError(t, o.Validate())
	return o
}

func noWait(attempts int) *retry.Policy {
	p := retry.New(attempts)
	p.SetSleep(func(time.Duration) {})
	return p
}
