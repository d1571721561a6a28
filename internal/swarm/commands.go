package swarm

import (
	"strings"

	"github.com/alessio/shellescape"
)

// Shell joins words into a command line safe to hand to a remote shell.
func Shell(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = shellescape.Quote(w)
	}
	return strings.Join(quoted, " ")
}

// PeerCommand downloads the payload of descriptor to dest on a host and exits
// 0 once the copy is complete.
func PeerCommand(client, descriptor, dest string) string {
	return Shell(client, "peer", descriptor, dest)
}

// SeedSuffix marks the descriptor copy a re-seeding host keeps for itself.
const SeedSuffix = ".seed"

// SeedCopyCommand copies a staged descriptor to the path the re-seed reads,
// so removing the staged descriptor at the end of a run cannot pull it out
// from under the seeder. It returns the command and the copy's path.
func SeedCopyCommand(descriptor string) (command, seedDescriptor string) {
	seedDescriptor = descriptor + SeedSuffix
	return Shell("cp", descriptor, seedDescriptor), seedDescriptor
}

// ReseedCommand starts the horde entrypoint in seed-only mode so a host that
// finished downloading serves the payload to later runs. The command is
// detached from the ssh session so it outlives it.
func ReseedCommand(entrypoint, client, descriptor, payload string) string {
	return "nohup " + Shell(entrypoint, "--seed", "--client", client, descriptor, payload) + " >/dev/null 2>&1 &"
}
