// Package config holds the distribution options shared by every component of
// a horde run.
//
// Options is built once by the command line layer, validated, and then only
// ever read. Workers for different hosts share the same value without any
// synchronization, so nothing in this package (or its callers) may mutate an
// Options after Validate has returned nil.
package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
)

// ErrInvalidConfig is returned for configuration problems that must stop the
// run before any network activity.
var ErrInvalidConfig = errors.New("invalid configuration")

// SRMount is the destination sentinel asking the coordinator to discover a
// storage-repository mount on each host instead of using a fixed path.
const SRMount = "sr-mount"

// Defaults mirror the values the tool has always shipped with.
const (
	DefaultPort       = 8998
	DefaultRemotePath = "/tmp/horde"
	DefaultDataFile   = "./data"
	DefaultLogDir     = "/tmp/horde"
	DefaultAttempts   = 3
)

// Options is the immutable configuration of one distribution run.
type Options struct {
	Payload     string // Local file to distribute
	Destination string // Remote destination path, or SRMount
	HostsFile   string // Newline-delimited host list file (optional)
	HostList    string // Comma separated hosts, used when HostsFile is empty

	Retry    int // Extra PEERING attempts per host; 0 disables retry
	Attempts int // Transport attempts per remote call

	Port       int    // Tracker port
	RemotePath string // Staging directory on every host
	DataFile   string // Tracker state file
	LogDir     string // Directory for <host>-ssh.log files

	RuntimeDir     string // Local swarm runtime shipped to hosts
	BundlePath     string // Cached archive of RuntimeDir
	ClientPath     string // Swarm client executable (seed/peer)
	TrackerPath    string // Tracker executable
	EntrypointPath string // This binary, staged for re-seeding

	Advertise  string // Overrides the resolved origin address when set
	Seed       bool   // Run as seed only
	Descriptor string // Seed mode: descriptor of the payload to serve
}

// Default returns Options populated with the stock defaults.
func Default() Options {
	return Options{
		Port:       DefaultPort,
		RemotePath: DefaultRemotePath,
		DataFile:   DefaultDataFile,
		LogDir:     DefaultLogDir,
		Attempts:   DefaultAttempts,
	}
}

// Validate checks the options for values that would make the run fail
// halfway. Host sources are checked separately by cluster.LoadHosts.
func (o Options) Validate() error {
	if o.Seed {
		return o.validateSeed()
	}
	if o.Payload == "" {
		return fmt.Errorf("%w: payload path is required", ErrInvalidConfig)
	}
	if o.Destination == "" {
		return fmt.Errorf("%w: remote destination is required", ErrInvalidConfig)
	}
	if o.Retry < 0 {
		return fmt.Errorf("%w: retry must be >= 0, got %d", ErrInvalidConfig, o.Retry)
	}
	if o.Attempts < 1 {
		return fmt.Errorf("%w: attempts must be >= 1, got %d", ErrInvalidConfig, o.Attempts)
	}
	if o.Port < 1 || o.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, o.Port)
	}
	if !path.IsAbs(o.RemotePath) {
		return fmt.Errorf("%w: remote path %q must be absolute", ErrInvalidConfig, o.RemotePath)
	}
	if o.RuntimeDir == "" {
		return fmt.Errorf("%w: runtime directory is required", ErrInvalidConfig)
	}
	return nil
}

func (o Options) validateSeed() error {
	if o.Descriptor == "" {
		return fmt.Errorf("%w: seed mode needs a descriptor", ErrInvalidConfig)
	}
	if o.Payload == "" {
		return fmt.Errorf("%w: seed mode needs the payload path", ErrInvalidConfig)
	}
	if o.ClientPath == "" {
		return fmt.Errorf("%w: seed mode needs the swarm client", ErrInvalidConfig)
	}
	return nil
}

// DiscoverDestination reports whether destinations are resolved per host.
func (o Options) DiscoverDestination() bool {
	return o.Destination == SRMount
}

// RuntimeName is the directory name the runtime bundle extracts to on a host.
func (o Options) RuntimeName() string {
	return filepath.Base(o.RuntimeDir)
}

// RemoteFile returns the staged location of name on every host.
func (o Options) RemoteFile(name string) string {
	return path.Join(o.RemotePath, name)
}

// RemoteClient is the staged swarm client on every host.
func (o Options) RemoteClient() string {
	return o.RemoteFile(ClientName)
}

// RemoteEntrypoint is the staged horde binary on every host.
func (o Options) RemoteEntrypoint() string {
	return o.RemoteFile(EntrypointName)
}

// Staged file names on hosts.
const (
	ClientName     = "horde-client"
	EntrypointName = "horde"
	BundleName     = "runtime.tar.gz"
)
