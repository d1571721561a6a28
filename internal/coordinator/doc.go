// Package coordinator implements the distribution protocol of horde: it stands
// up the local tracker and seed, bootstraps every host, drives one transfer
// state machine per host and cleans up once every host has a verdict.
//
// # Overview
//
// Copying one large file to N hosts point-to-point costs N full uploads from a
// single machine. The coordinator instead builds a swarm descriptor, seeds the
// payload itself and lets every host pull pieces from every other host. Hosts
// that finish are turned into seeds for later runs.
//
// # Run Sequence
//
//	Coordinator.Run
//	  │
//	  ├─ tracker.Track          (background, never joined)
//	  ├─ ResolveOrigin          origin:port becomes the announce endpoint
//	  ├─ builder.Build          exactly one descriptor per run
//	  ├─ seeder.Seed            (background, never joined)
//	  ├─ bundle.Ensure          runtime archive, cached across runs
//	  ├─ one goroutine per host
//	  │    ├─ DiscoverTarget    only for the sr-mount destination
//	  │    └─ Worker.Run        state machine below
//	  ├─ wait for every host
//	  ├─ rm staged descriptor on every host (best effort)
//	  └─ remove descriptor and tracker state locally
//
// # Transfer State Machine
//
//	PENDING → BOOTSTRAPPING → COPYING → PEERING ─┬─ exit 0 ──→ SUCCESS ⇢ re-seed
//	              ▲                              │
//	              └──── exit ≠ 0, retries left ──┤
//	                                             └─ exit ≠ 0, none left → FAILED
//
// Bootstrapping probes `test -d <staging>/<runtime>` and installs nothing when
// the directory exists, so every retry pays only for that probe. A transport
// error (ssh/scp could not reach the host after the configured attempts) or a
// failing bootstrap step moves the job straight to FAILED without touching the
// retry budget. The retry budget only decreases; a job with r retries makes at
// most r+1 PEERING attempts.
//
// # Concurrency Model
//
//   - Options are shared read-only by every worker
//   - Each TransferJob belongs to exactly one goroutine
//   - Each host has its own log file, written only by its worker
//   - Results are written to a per-host slot, so the fan-out needs no locks
//   - The descriptor and bundle are created before fan-out and removed after
//
// Before re-seeding, the worker copies the staged descriptor to
// <descriptor>.seed on the host and hands that copy to the seeder, so the
// end-of-run cleanup of the staged descriptor does not affect it.
//
// Re-seeding is a detached side task. The coordinator counts in-flight
// re-seeds (PendingReseeds) but never waits for them; if the process exits
// first the re-seed may be cut short. This is a best-effort propagation, not
// part of the run's success criteria.
//
// # Failure Handling
//
// A run returns an error only if it cannot start: an option-like host entry,
// no origin address, no descriptor, or no runtime bundle. Duplicate hosts are
// collapsed before fan-out. Everything that happens to a single host
// lands in the Report:
//   - Discovery failure: the host is listed in Report.Skipped
//   - Transport or bootstrap failure: Result.State is FAILED
//   - Peer exits non-zero after the retry budget: FAILED with ErrPeerFailed
//
// # See Also
//
// Related packages:
//   - internal/remote: ssh/scp execution with retry and per-host logs
//   - internal/swarm: descriptor building and tracker/seed services
//   - internal/bundle: runtime archive packaging
package coordinator
