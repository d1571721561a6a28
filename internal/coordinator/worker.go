package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/dreamware/horde/internal/config"
	"github.com/dreamware/horde/internal/swarm"
)

// ErrPeerFailed is returned when the remote peer process exits non-zero on
// the last allowed attempt.
var ErrPeerFailed = errors.New("peer failed")

// Worker drives one TransferJob through
// BOOTSTRAPPING → COPYING → PEERING → SUCCESS | FAILED, retrying the whole
// sequence while the job has retries left and the peer step exits non-zero.
// Transport and bootstrap errors fail the job immediately.
type Worker struct {
	remote Remote
	boot   *Bootstrapper
	opts   *config.Options
	detach func(func())
}

// NewWorker returns a worker. detach runs the fire-and-forget re-seed; it
// must not block.
func NewWorker(remote Remote, boot *Bootstrapper, opts *config.Options, detach func(func())) *Worker {
	if detach == nil {
		detach = func(fn func()) { go fn() }
	}
	return &Worker{remote: remote, boot: boot, opts: opts, detach: detach}
}

// Run executes job until it reaches a terminal state.
func (w *Worker) Run(ctx context.Context, job *TransferJob) Result {
	job.started = time.Now()
	res := Result{Host: job.Host, Target: job.Target}
	remoteDesc := w.opts.RemoteFile(filepath.Base(job.Descriptor))

	for {
		job.transition(StateBootstrapping)
		installed, err := w.boot.Ensure(ctx, job.Host)
		if err != nil {
			return w.fail(job, res, err)
		}
		res.Bootstrapped = res.Bootstrapped || installed

		job.transition(StateCopying)
		log.Printf("host[%s] copying %s to %s", job.Host, job.Descriptor, remoteDesc)
		if err := w.remote.Copy(ctx, job.Host, job.Descriptor, remoteDesc); err != nil {
			return w.fail(job, res, err)
		}

		job.transition(StatePeering)
		job.Attempts++
		command := swarm.PeerCommand(w.opts.RemoteClient(), remoteDesc, job.Target)
		log.Printf("host[%s] running %q", job.Host, command)
		code, err := w.remote.Run(ctx, job.Host, command)
		if err != nil {
			return w.fail(job, res, err)
		}
		if code == 0 {
			job.transition(StateSuccess)
			res.Reseeded = w.reseed(ctx, job, remoteDesc)
			return w.finish(job, res, nil)
		}

		log.Printf("host[%s] FAILED with code %d", job.Host, code)
		if job.RetriesLeft <= 0 {
			return w.fail(job, res, fmt.Errorf("%w: %s exited %d after %d attempts", ErrPeerFailed, job.Host, code, job.Attempts))
		}
		job.RetriesLeft--
		log.Printf("host[%s] retrying (%d retries left)", job.Host, job.RetriesLeft)
	}
}

// reseed stages the host's own copy of the descriptor and then fires the
// seed-only entrypoint without waiting for it. The copy is made before Run
// returns, so the end-of-run cleanup of the staged descriptor never races
// the seeder. It reports whether the re-seed was launched.
func (w *Worker) reseed(ctx context.Context, job *TransferJob, remoteDesc string) bool {
	host := job.Host
	stage, seedDesc := swarm.SeedCopyCommand(remoteDesc)
	code, err := w.remote.Run(ctx, host, stage)
	if err != nil || code != 0 {
		log.Printf("host[%s] re-seed skipped, staging %s failed (code %d): %v", host, seedDesc, code, err)
		return false
	}

	command := swarm.ReseedCommand(w.opts.RemoteEntrypoint(), w.opts.RemoteClient(), seedDesc, job.Target)
	w.detach(func() {
		code, err := w.remote.Run(ctx, host, command)
		switch {
		case err != nil:
			log.Printf("host[%s] re-seed failed: %v", host, err)
		case code != 0:
			log.Printf("host[%s] re-seed exited %d", host, code)
		default:
			log.Printf("host[%s] re-seeding", host)
		}
	})
	return true
}

func (w *Worker) fail(job *TransferJob, res Result, err error) Result {
	job.transition(StateFailed)
	log.Printf("host[%s] FAILED: %v", job.Host, err)
	return w.finish(job, res, err)
}

func (w *Worker) finish(job *TransferJob, res Result, err error) Result {
	res.State = job.State
	res.Attempts = job.Attempts
	res.Err = err
	res.Elapsed = time.Since(job.started)
	return res
}
