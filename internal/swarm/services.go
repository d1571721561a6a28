package swarm

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
)

// TrackerService coordinates peers of a swarm. Track blocks for the life of
// the tracker.
type TrackerService interface {
	Track(ctx context.Context, port int, stateFile string) error
}

// SeedService serves a complete payload to the swarm described by a
// descriptor. Seed blocks for the life of the seeder.
type SeedService interface {
	Seed(ctx context.Context, descriptor, file string) error
}

// CommandTracker runs an external tracker executable.
type CommandTracker struct {
	Path string
}

// Track implements TrackerService.
func (t CommandTracker) Track(ctx context.Context, port int, stateFile string) error {
	return runForeground(ctx, t.Path, "--port", strconv.Itoa(port), "--dfile", stateFile)
}

// CommandSeeder runs the swarm client in seed mode.
type CommandSeeder struct {
	Path string
}

// Seed implements SeedService.
func (s CommandSeeder) Seed(ctx context.Context, descriptor, file string) error {
	return runForeground(ctx, s.Path, "seed", descriptor, file)
}

func runForeground(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Printf("executing: %s", cmd.String())
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
