package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/dreamware/horde/internal/bundle"
	"github.com/dreamware/horde/internal/cluster"
	"github.com/dreamware/horde/internal/config"
	"github.com/dreamware/horde/internal/retry"
	"github.com/dreamware/horde/internal/swarm"
)

// discoveryAttempts bounds storage-repository discovery per host.
const discoveryAttempts = 3

// Remote is the remote execution capability the coordinator needs.
// *remote.Exec satisfies it.
type Remote interface {
	Run(ctx context.Context, host, command string) (int, error)
	Copy(ctx context.Context, host, localPath, remotePath string) error
	Output(ctx context.Context, host, command string) (string, error)
}

// Coordinator owns one distribution run: the local tracker and seed, the
// descriptor, the fan-out of workers and the final cleanup.
type Coordinator struct {
	opts    config.Options
	remote  Remote
	tracker swarm.TrackerService
	seeder  swarm.SeedService
	builder swarm.DescriptorBuilder

	resolveOrigin func() (string, error)
	ensureBundle  func(runtimeDir, bundlePath string) (string, error)
	removeFile    func(name string) error
	discovery     *retry.Policy

	reseeds atomic.Int64 // re-seed side tasks still running
}

// New returns a coordinator for opts using the command-backed tracker and
// seeder and the metainfo descriptor builder. opts must already be valid.
func New(opts config.Options, remote Remote) *Coordinator {
	c := &Coordinator{
		opts:          opts,
		remote:        remote,
		tracker:       swarm.CommandTracker{Path: opts.TrackerPath},
		seeder:        swarm.CommandSeeder{Path: opts.ClientPath},
		builder:       &swarm.MetainfoBuilder{},
		resolveOrigin: cluster.ResolveOrigin,
		ensureBundle:  bundle.Ensure,
		removeFile:    os.Remove,
		discovery:     retry.New(discoveryAttempts).WithHook(retry.LogHook),
	}
	if opts.Advertise != "" {
		c.resolveOrigin = func() (string, error) { return opts.Advertise, nil }
	}
	return c
}

// SetTracker replaces the tracker service.
func (c *Coordinator) SetTracker(t swarm.TrackerService) { c.tracker = t }

// SetSeeder replaces the local seed service.
func (c *Coordinator) SetSeeder(s swarm.SeedService) { c.seeder = s }

// SetBuilder replaces the descriptor builder.
func (c *Coordinator) SetBuilder(b swarm.DescriptorBuilder) { c.builder = b }

// SetOriginResolver replaces how the coordinator learns its own address.
func (c *Coordinator) SetOriginResolver(fn func() (string, error)) { c.resolveOrigin = fn }

// SetBundler replaces how the runtime bundle is produced.
func (c *Coordinator) SetBundler(fn func(runtimeDir, bundlePath string) (string, error)) {
	c.ensureBundle = fn
}

// SetRemover replaces local file removal used during cleanup.
func (c *Coordinator) SetRemover(fn func(name string) error) { c.removeFile = fn }

// SetDiscoveryPolicy replaces the retry policy for destination discovery.
func (c *Coordinator) SetDiscoveryPolicy(p *retry.Policy) { c.discovery = p }

// PendingReseeds is the number of re-seed commands still in flight. The run
// never waits for them; process exit may cut them short.
func (c *Coordinator) PendingReseeds() int64 {
	return c.reseeds.Load()
}

// Report summarizes a run. Host failures are recorded here, never returned
// as an error from Run.
type Report struct {
	RunID   string
	Results []Result
	Skipped []Skip
	Elapsed time.Duration
}

// Succeeded lists hosts that reached SUCCESS.
func (r *Report) Succeeded() []cluster.Host {
	return r.hostsIn(StateSuccess)
}

// Failed lists hosts that reached FAILED.
func (r *Report) Failed() []cluster.Host {
	return r.hostsIn(StateFailed)
}

func (r *Report) hostsIn(s State) []cluster.Host {
	var out []cluster.Host
	for _, res := range r.Results {
		if res.State == s {
			out = append(out, res.Host)
		}
	}
	return out
}

// Result returns the outcome for host, if a worker ran for it.
func (r *Report) Result(host cluster.Host) (Result, bool) {
	i := slices.IndexFunc(r.Results, func(res Result) bool { return res.Host == host })
	if i < 0 {
		return Result{}, false
	}
	return r.Results[i], true
}

type outcome struct {
	result *Result
	skip   *Skip
}

// Run distributes the payload to hosts. hosts is normalized the way
// cluster.ParseHosts does it, so duplicates get a single worker. Run returns
// an error only when the run cannot start (bad host entry, descriptor or
// bundle failure); per-host failures end up in the Report.
func (c *Coordinator) Run(ctx context.Context, hosts []cluster.Host) (*Report, error) {
	start := time.Now()
	// One worker per host: a duplicate would drive the same host twice.
	hosts, err := cluster.ParseHosts(hosts)
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: uuid.NewString()}
	log.Printf("run %s: distributing %s to %d hosts", report.RunID, c.opts.Payload, len(hosts))

	log.Printf("spawning tracker on port %d", c.opts.Port)
	go func() {
		if err := c.tracker.Track(ctx, c.opts.Port, c.opts.DataFile); err != nil {
			log.Printf("tracker exited: %v", err)
		}
	}()

	origin, err := c.resolveOrigin()
	if err != nil {
		return nil, err
	}
	announce := cluster.Announce(origin, c.opts.Port)
	log.Printf("creating descriptor (tracker %s)", announce)
	descriptor, err := c.builder.Build(c.opts.Payload, announce)
	if err != nil {
		return nil, fmt.Errorf("build descriptor: %w", err)
	}
	defer c.removeLocal(descriptor)
	if d, err := swarm.ReadDescriptor(descriptor); err == nil {
		log.Printf("descriptor %s: %s (%d bytes, %d pieces, info hash %s)",
			descriptor, d.Name, d.Length, len(d.Pieces), d.InfoHash)
	}

	log.Printf("seeding %s", descriptor)
	go func() {
		if err := c.seeder.Seed(ctx, descriptor, c.opts.Payload); err != nil {
			log.Printf("local seed exited: %v", err)
		}
	}()

	bundlePath, err := c.ensureBundle(c.opts.RuntimeDir, c.opts.BundlePath)
	if err != nil {
		return nil, fmt.Errorf("runtime bundle: %w", err)
	}
	boot := NewBootstrapper(c.remote, &c.opts, bundlePath)
	worker := NewWorker(c.remote, boot, &c.opts, c.detach)

	log.Printf("transferring")
	outcomes := make([]outcome, len(hosts))
	var wg sync.WaitGroup
	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host cluster.Host) {
			defer wg.Done()
			outcomes[i] = c.runHost(ctx, worker, host, descriptor)
		}(i, host)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.skip != nil {
			report.Skipped = append(report.Skipped, *o.skip)
			continue
		}
		report.Results = append(report.Results, *o.result)
	}

	c.cleanupHosts(ctx, hosts, c.opts.RemoteFile(filepath.Base(descriptor)))

	report.Elapsed = time.Since(start)
	log.Printf("finished, took %.2f seconds (%d succeeded, %d failed, %d skipped)",
		report.Elapsed.Seconds(), len(report.Succeeded()), len(report.Failed()), len(report.Skipped))
	return report, nil
}

func (c *Coordinator) runHost(ctx context.Context, worker *Worker, host cluster.Host, descriptor string) outcome {
	target := c.opts.Destination
	if c.opts.DiscoverDestination() {
		t, err := DiscoverTarget(ctx, c.remote, c.discovery, host, c.opts.Payload)
		if err != nil {
			log.Printf("host[%s] skipped: %v", host, err)
			return outcome{skip: &Skip{Host: host, Err: err}}
		}
		target = t
	}
	job := NewTransferJob(host, descriptor, target, c.opts.Retry)
	res := worker.Run(ctx, job)
	return outcome{result: &res}
}

// detach runs fn as a side task the run does not wait for.
func (c *Coordinator) detach(fn func()) {
	c.reseeds.Add(1)
	go func() {
		defer c.reseeds.Add(-1)
		fn()
	}()
}

// cleanupHosts removes the staged descriptor from every host, best effort.
func (c *Coordinator) cleanupHosts(ctx context.Context, hosts []cluster.Host, remoteDesc string) {
	command := swarm.Shell("rm", "-f", remoteDesc)
	var wg sync.WaitGroup
	for _, host := range hosts {
		wg.Add(1)
		go func(host cluster.Host) {
			defer wg.Done()
			if _, err := c.remote.Run(ctx, host, command); err != nil {
				log.Printf("host[%s] cleanup failed: %v", host, err)
			}
		}(host)
	}
	wg.Wait()
}

// removeLocal deletes the descriptor and the tracker state file.
func (c *Coordinator) removeLocal(descriptor string) {
	for _, name := range []string{descriptor, c.opts.DataFile} {
		if name == "" {
			continue
		}
		if err := c.removeFile(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("cleanup %s: %v", name, err)
		}
	}
}
