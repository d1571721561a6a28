package coordinator

import (
	"log"
	"time"

	"github.com/dreamware/horde/internal/cluster"
)

// State is the lifecycle position of a TransferJob.
type State string

const (
	// StatePending means the worker has not started yet
	StatePending State = "PENDING"
	// StateBootstrapping means the runtime is being checked or installed
	StateBootstrapping State = "BOOTSTRAPPING"
	// StateCopying means the descriptor is being staged on the host
	StateCopying State = "COPYING"
	// StatePeering means the host is downloading from the swarm
	StatePeering State = "PEERING"
	// StateSuccess means the host holds a verified copy of the payload
	StateSuccess State = "SUCCESS"
	// StateFailed means the host gave up; siblings are unaffected
	StateFailed State = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// TransferJob is the runtime record of one host's transfer. It is owned by a
// single worker goroutine and never shared.
type TransferJob struct {
	Host        cluster.Host
	Descriptor  string // Local descriptor path
	Target      string // Resolved remote destination
	RetriesLeft int    // Only ever decreases
	State       State
	Attempts    int // PEERING attempts made so far

	started time.Time
}

// NewTransferJob returns a PENDING job for host. A negative retries is
// treated as 0.
func NewTransferJob(host cluster.Host, descriptor, target string, retries int) *TransferJob {
	retries = max(retries, 0)
	return &TransferJob{
		Host:        host,
		Descriptor:  descriptor,
		Target:      target,
		RetriesLeft: retries,
		State:       StatePending,
	}
}

func (j *TransferJob) transition(to State) {
	log.Printf("host[%s] %s -> %s", j.Host, j.State, to)
	j.State = to
}

// Result is the terminal outcome of a TransferJob.
type Result struct {
	Host         cluster.Host
	Target       string
	State        State
	Attempts     int  // PEERING attempts
	Bootstrapped bool // Runtime installed during this run
	Reseeded     bool // Re-seed was fired (best effort, not awaited)
	Err          error
	Elapsed      time.Duration
}

// Skip records a host left out of the run before its worker started.
type Skip struct {
	Host cluster.Host
	Err  error
}
