package coordinator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/dreamware/horde/internal/cluster"
	"github.com/dreamware/horde/internal/retry"
)

// ErrDiscovery is returned when a host's storage repository cannot be found.
var ErrDiscovery = errors.New("storage repository discovery failed")

// discoverCommand lists mounts in POSIX format so long device names never
// wrap onto a second line.
const discoverCommand = "df -P"

const srMountSegment = "/sr-mount/"

// DiscoverTarget finds the storage-repository mount on host and returns the
// path payload should be written to inside it.
func DiscoverTarget(ctx context.Context, remote Remote, policy *retry.Policy, host cluster.Host, payload string) (string, error) {
	mount, err := retry.Value(ctx, policy, "discover "+host, func() (string, error) {
		out, err := remote.Output(ctx, host, discoverCommand)
		if err != nil {
			return "", err
		}
		return ParseSRMount(out)
	})
	if err != nil {
		return "", fmt.Errorf("%w on %s: %w", ErrDiscovery, host, err)
	}
	return path.Join(mount, filepath.Base(payload)), nil
}

// ParseSRMount extracts the first storage-repository mount point from df
// output. Anything that does not look like a single clean absolute path is
// rejected rather than guessed at.
func ParseSRMount(out string) (string, error) {
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		mount := fields[len(fields)-1]
		if !strings.Contains(mount, srMountSegment) {
			continue
		}
		if !path.IsAbs(mount) || path.Clean(mount) != mount {
			return "", fmt.Errorf("unusable mount point %q", mount)
		}
		return mount, nil
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("no %s mount in df output", strings.Trim(srMountSegment, "/"))
}
