// Package main implements horde, which distributes one large local file to
// many hosts by bootstrapping a peer-to-peer swarm instead of copying the
// file to each host in turn.
//
// The coordinator (the machine running horde) becomes the tracker and the
// first seed. Every host gets the runtime bundle and the descriptor over ssh,
// downloads from the swarm, and then re-runs horde in seed mode so it can
// serve later distributions.
//
// Usage:
//
//	horde [flags] <local-file> <remote-file|sr-mount> [hosts-file]
//	horde --seed [--client path] <descriptor> <local-file>
//
// Flags may appear before or after the positional arguments. Every flag
// default can also be set from the environment:
//   - HORDE_RETRY, HORDE_ATTEMPTS, HORDE_PORT
//   - HORDE_REMOTE_PATH, HORDE_DATA_FILE, HORDE_LOG_DIR
//   - HORDE_RUNTIME_DIR, HORDE_BUNDLE, HORDE_CLIENT, HORDE_TRACKER
//   - HORDE_ADVERTISE
//
// Example usage:
//
//	# Push an image to every host listed in ./hosts, retrying each host twice
//	horde --retry 2 ./base.vhd /tmp/base.vhd ./hosts
//
//	# Let each host pick its storage repository mount
//	horde --hostlist xen1,xen2,xen3 ./base.vhd sr-mount
//
// Exit codes:
//   - 0: Run completed (individual host failures are logged, not fatal)
//   - 1: Configuration error, reported before any network activity
//   - 1: Run could not start (descriptor or runtime bundle failure)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/dreamware/horde/internal/bundle"
	"github.com/dreamware/horde/internal/cluster"
	"github.com/dreamware/horde/internal/config"
	"github.com/dreamware/horde/internal/coordinator"
	"github.com/dreamware/horde/internal/remote"
	"github.com/dreamware/horde/internal/retry"
	"github.com/dreamware/horde/internal/swarm"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	if opts.Seed {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := seed(ctx, opts); err != nil {
			log.Printf("seed: %v", err)
			os.Exit(1)
		}
		return
	}

	hosts, err := cluster.LoadHosts(opts.HostsFile, opts.HostList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	log.Printf("running with options: %+v", opts)
	log.Printf("running for hosts: %v", hosts)

	exec := remote.NewExec(opts.LogDir, retry.New(opts.Attempts).WithHook(retry.LogHook))
	report, err := coordinator.New(opts, exec).Run(context.Background(), hosts)
	if err != nil {
		log.Printf("run failed: %v", err)
		os.Exit(1)
	}
	for _, s := range report.Skipped {
		log.Printf("FAIL: %s skipped: %v", s.Host, s.Err)
	}
	for _, r := range report.Results {
		if r.State == coordinator.StateFailed {
			log.Printf("FAIL: %s after %d attempts: %v", r.Host, r.Attempts, r.Err)
		}
	}
}

// seed serves a payload this host already holds.
func seed(ctx context.Context, opts config.Options) error {
	d, err := swarm.ReadDescriptor(opts.Descriptor)
	if err != nil {
		return err
	}
	log.Printf("seeding %s (%s, info hash %s) from %s", d.Name, d.Announce, d.InfoHash, opts.Payload)
	return swarm.CommandSeeder{Path: opts.ClientPath}.Seed(ctx, opts.Descriptor, opts.Payload)
}

// parseOptions builds the run's Options from args and the environment.
func parseOptions(args []string) (config.Options, error) {
	return parseOptionsTo(os.Stderr, args)
}

func parseOptionsTo(out io.Writer, args []string) (config.Options, error) {
	o := config.Default()
	exeDir, exe := executable()

	fs := flag.NewFlagSet("horde", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: horde [flags] <local-file> <remote-file|%s> [hosts-file]\n", config.SRMount)
		fmt.Fprintf(fs.Output(), "       horde --seed [flags] <descriptor> <local-file>\n")
		fs.PrintDefaults()
	}
	fs.IntVar(&o.Retry, "retry", envInt("HORDE_RETRY", 0), "Number of times to retry a host whose transfer fails")
	fs.IntVar(&o.Attempts, "attempts", envInt("HORDE_ATTEMPTS", config.DefaultAttempts), "Transport attempts per ssh/scp call")
	fs.IntVar(&o.Port, "port", envInt("HORDE_PORT", config.DefaultPort), "Port number to run the tracker on")
	fs.StringVar(&o.RemotePath, "remote-path", getenv("HORDE_REMOTE_PATH", config.DefaultRemotePath), "Staging path on every host")
	fs.StringVar(&o.DataFile, "data-file", getenv("HORDE_DATA_FILE", config.DefaultDataFile), "Tracker state file")
	fs.StringVar(&o.LogDir, "log-dir", getenv("HORDE_LOG_DIR", config.DefaultLogDir), "Directory for per-host ssh logs")
	fs.StringVar(&o.HostList, "hostlist", "", "Comma separated list of hosts")
	fs.BoolVar(&o.Seed, "seed", false, "Seed a local file from its descriptor")
	fs.StringVar(&o.RuntimeDir, "runtime-dir", getenv("HORDE_RUNTIME_DIR", filepath.Join(exeDir, "runtime")), "Swarm runtime shipped to hosts")
	fs.StringVar(&o.BundlePath, "bundle", getenv("HORDE_BUNDLE", ""), "Cached runtime archive (default <runtime-dir>.tar.gz)")
	fs.StringVar(&o.ClientPath, "client", getenv("HORDE_CLIENT", filepath.Join(exeDir, config.ClientName)), "Swarm client executable")
	fs.StringVar(&o.TrackerPath, "tracker", getenv("HORDE_TRACKER", filepath.Join(exeDir, "horde-tracker")), "Tracker executable")
	fs.StringVar(&o.Advertise, "advertise", getenv("HORDE_ADVERTISE", ""), "Address announced to hosts (default: probed)")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return o, err
	}
	o.EntrypointPath = exe
	if o.BundlePath == "" {
		o.BundlePath = bundle.DefaultPath(o.RuntimeDir)
	}

	if o.Seed {
		if len(positional) != 2 {
			return o, fmt.Errorf("%w: seed mode takes <descriptor> <local-file>", config.ErrInvalidConfig)
		}
		o.Descriptor, o.Payload = positional[0], positional[1]
		return o, o.Validate()
	}

	if len(positional) < 2 || len(positional) > 3 {
		return o, fmt.Errorf("%w: expected <local-file> <remote-file> [hosts-file]", config.ErrInvalidConfig)
	}
	o.Payload, o.Destination = positional[0], positional[1]
	if len(positional) == 3 {
		o.HostsFile = positional[2]
	}
	return o, o.Validate()
}

// parseInterspersed lets flags follow positional arguments.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func executable() (dir, path string) {
	exe, err := os.Executable()
	if err != nil {
		return ".", os.Args[0]
	}
	return filepath.Dir(exe), exe
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", k, v, err)
		return def
	}
	return n
}
