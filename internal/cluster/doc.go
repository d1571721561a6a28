// Package cluster describes the fleet a distribution run targets: which hosts
// take part and how the coordinator advertises itself to them.
//
// # Overview
//
// A horde run has one coordinator and N target hosts. The coordinator is the
// first seed of the swarm and runs the tracker; every host joins the swarm as
// a peer and, once complete, becomes a seed for later runs:
//
//	              ┌──────────────────┐
//	              │   Coordinator    │
//	              │                  │
//	              │ - Tracker :8998  │
//	              │ - Seed (origin)  │
//	              └────────┬─────────┘
//	                       │ ssh / scp
//	      ┌────────────────┼────────────────┐
//	      │                │                │
//	┌─────▼─────┐    ┌─────▼─────┐    ┌─────▼─────┐
//	│  Host 1   │◄──►│  Host 2   │◄──►│  Host 3   │
//	│  peer     │    │  peer     │    │  peer     │
//	└───────────┘    └───────────┘    └───────────┘
//
// # Host Lists
//
// Hosts come from a newline-delimited file or an inline comma separated list.
// Both are normalized the same way:
//   - Surrounding whitespace is trimmed
//   - Blank lines are dropped
//   - Lines starting with '#' are comments
//   - Duplicates are removed
//   - Entries starting with '-' are rejected, since ssh would read them as options
//
// The working set is sorted for stable logs, but nothing downstream depends on
// host order: every host is driven by its own goroutine.
//
// # Origin Resolution
//
// Descriptors announce the tracker at origin:port. The origin is learned by
// connecting a UDP socket to a non-routed probe address and reading back the
// local address the kernel bound. No packet is sent and the probe address
// never has to exist.
//
// # Errors
//
// A missing host source is a configuration error (config.ErrInvalidConfig)
// and is reported before any network activity.
//
// # See Also
//
// Related packages:
//   - internal/coordinator: Fan-out of transfer workers across hosts
//   - internal/swarm: Descriptor building and the tracker/seed services
package cluster
