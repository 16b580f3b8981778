package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"fim-go/internal/fim"
)

// MemoryVault keeps baselines in memory. It is useful for tests and is safe
// for concurrent use.
type MemoryVault struct {
	name     string
	mu       sync.RWMutex
	data     map[string][]byte // "hostID/name" -> archive
	versions map[string]int64  // "hostID/name" -> version
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		data:     make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func baselineKey(hostID, name string) string {
	return hostID + "/" + name
}

func (m *MemoryVault) PutBaseline(hostID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read baseline: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := baselineKey(hostID, name)
	m.data[key] = data
	m.versions[key] = version
	return nil
}

// GetBaselineVersion returns 0 if nothing has been stored for this host/name.
func (m *MemoryVault) GetBaselineVersion(hostID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[baselineKey(hostID, name)], nil
}

func (m *MemoryVault) GetBaseline(hostID string, name string, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.data[baselineKey(hostID, name)]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("baseline %q not found for host: %s", name, hostID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write baseline: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

var _ fim.Vault = (*MemoryVault)(nil)
