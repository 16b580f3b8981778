package vault

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fim-go/internal/fim"
)

// FileSystemVault stores baselines as files, typically on a mount that the
// monitored host cannot rewrite (NFS export, removable disk):
//
//	<root>/
//	  baselines/
//	    <hostID>/
//	      <name>           (archived snapshot store)
//	      <name>.version   (decimal version of the archive)
type FileSystemVault struct {
	name string
	root string
	dir  string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	dir := filepath.Join(root, "baselines")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create baselines directory: %w", err)
	}
	return &FileSystemVault{name: name, root: root, dir: dir}, nil
}

func (v *FileSystemVault) hostDir(hostID string) (string, error) {
	if hostID == "" || strings.ContainsAny(hostID, `/\`) || hostID == "." || hostID == ".." {
		return "", fmt.Errorf("invalid host id %q", hostID)
	}
	return filepath.Join(v.dir, hostID), nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid baseline name %q", name)
	}
	return nil
}

// PutBaseline stores a named baseline for a host along with its version.
// The archive is written before the version marker, so a reader never sees
// a version whose archive is missing.
func (v *FileSystemVault) PutBaseline(hostID string, name string, r io.Reader, size int64, version int64) error {
	dir, err := v.hostDir(hostID)
	if err != nil {
		return err
	}
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create host directory: %w", err)
	}

	if err := writeFile(filepath.Join(dir, name), r, size); err != nil {
		return err
	}
	versionData := strconv.FormatInt(version, 10)
	return writeFile(filepath.Join(dir, name+".version"), strings.NewReader(versionData), int64(len(versionData)))
}

// GetBaselineVersion returns the archived version for a named baseline.
// Returns 0 if no version file exists.
func (v *FileSystemVault) GetBaselineVersion(hostID string, name string) (int64, error) {
	dir, err := v.hostDir(hostID)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name+".version"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// GetBaseline writes the named baseline of a host to w.
func (v *FileSystemVault) GetBaseline(hostID string, name string, w io.Writer) error {
	dir, err := v.hostDir(hostID)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("baseline %q not found for host: %s", name, hostID)
		}
		return fmt.Errorf("failed to open baseline: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read baseline: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible and
// writable.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}

	probe, err := os.CreateTemp(v.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("vault not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// writeFile writes r to destPath through a temp file in the same directory
// and renames it into place once the size matches.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

var _ fim.Vault = (*FileSystemVault)(nil)
