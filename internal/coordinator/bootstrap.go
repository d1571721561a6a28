package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/alessio/shellescape"

	"github.com/dreamware/horde/internal/cluster"
	"github.com/dreamware/horde/internal/config"
	"github.com/dreamware/horde/internal/swarm"
)

// ErrBootstrap is returned when a bootstrap step runs but exits non-zero.
var ErrBootstrap = errors.New("bootstrap failed")

// Bootstrapper installs the runtime bundle, the swarm client and the horde
// entrypoint on hosts that do not have them yet.
type Bootstrapper struct {
	remote     Remote
	opts       *config.Options
	bundlePath string
}

// NewBootstrapper returns a bootstrapper shipping the archive at bundlePath.
func NewBootstrapper(remote Remote, opts *config.Options, bundlePath string) *Bootstrapper {
	return &Bootstrapper{remote: remote, opts: opts, bundlePath: bundlePath}
}

// Ensure makes sure host is bootstrapped. It reports whether anything was
// installed; a host that already has the runtime directory is left alone.
func (b *Bootstrapper) Ensure(ctx context.Context, host cluster.Host) (bool, error) {
	staging := b.opts.RemotePath
	runtimeDir := b.opts.RemoteFile(b.opts.RuntimeName())

	code, err := b.remote.Run(ctx, host, swarm.Shell("test", "-d", runtimeDir))
	if err != nil {
		return false, err
	}
	if code == 0 {
		return false, nil
	}

	log.Printf("host[%s] installing runtime into %s", host, staging)
	if err := b.run(ctx, host, swarm.Shell("mkdir", "-p", staging)); err != nil {
		return false, err
	}
	if err := b.remote.Copy(ctx, host, b.bundlePath, b.opts.RemoteFile(config.BundleName)); err != nil {
		return false, err
	}
	extract := "cd " + shellescape.Quote(staging) + " && tar zxf " + config.BundleName + " > /dev/null"
	if err := b.run(ctx, host, extract); err != nil {
		return false, err
	}
	if err := b.remote.Copy(ctx, host, b.opts.ClientPath, b.opts.RemoteClient()); err != nil {
		return false, err
	}
	if err := b.remote.Copy(ctx, host, b.opts.EntrypointPath, b.opts.RemoteEntrypoint()); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Bootstrapper) run(ctx context.Context, host cluster.Host, command string) error {
	code, err := b.remote.Run(ctx, host, command)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("%w: %q on %s exited %d", ErrBootstrap, command, host, code)
	}
	return nil
}
