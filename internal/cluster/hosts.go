package cluster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/dreamware/horde/internal/config"
)

// Host is the address (name or IP, optionally user@) of one fleet member.
type Host = string

// commentMarker starts a comment line in a hosts file.
const commentMarker = "#"

// LoadHosts returns the deduplicated host set named by the options. A hosts
// file wins over an inline list; naming a file that does not exist, or naming
// no source at all, is a configuration error.
func LoadHosts(hostsFile, hostList string) ([]Host, error) {
	if hostsFile != "" {
		f, err := os.Open(hostsFile)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: hosts file %q does not exist", config.ErrInvalidConfig, hostsFile)
		}
		if err != nil {
			return nil, fmt.Errorf("open hosts file: %w", err)
		}
		defer f.Close()
		return ReadHosts(f)
	}
	if strings.TrimSpace(hostList) == "" {
		return nil, fmt.Errorf("%w: no hosts file or host list given", config.ErrInvalidConfig)
	}
	return ParseHosts(strings.Split(hostList, ","))
}

// ReadHosts reads one host per line from r.
func ReadHosts(r io.Reader) ([]Host, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read hosts: %w", err)
	}
	return ParseHosts(lines)
}

// ParseHosts trims every entry, drops blanks and comments, and removes
// duplicates. The result is sorted; callers must not rely on any order.
// Entries starting with '-' would be read as ssh options and are rejected.
func ParseHosts(entries []string) ([]Host, error) {
	hosts := make([]Host, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || strings.HasPrefix(e, commentMarker) {
			continue
		}
		if strings.HasPrefix(e, "-") {
			return nil, fmt.Errorf("%w: host %q looks like an option", config.ErrInvalidConfig, e)
		}
		hosts = append(hosts, e)
	}
	slices.Sort(hosts)
	return slices.Compact(hosts), nil
}
