package fim

import "io"

// Vault stores archived copies of a host's snapshot store away from the
// host, so a baseline can be recovered even if the local copy was altered.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutBaseline stores a named baseline for a host.
	// size is the number of bytes that will be read from r.
	// version is stored alongside the baseline for consistency checks.
	PutBaseline(hostID string, name string, r io.Reader, size int64, version int64) error

	// GetBaseline retrieves a named baseline for a host and writes it to w.
	GetBaseline(hostID string, name string, w io.Writer) error

	// GetBaselineVersion returns the archived version for a named baseline.
	// Returns 0 if nothing has been stored for this host/name.
	GetBaselineVersion(hostID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
