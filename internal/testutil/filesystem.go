package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minio/sha256-simd"
	"github.com/spf13/afero"

	"fim-go/internal/crawler"
	"fim-go/internal/model"
)

// Epoch is the modification time WriteFile gives files unless told
// otherwise.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// MemFS is an in-memory filesystem tree for walking in tests.
type MemFS struct {
	t  *testing.T
	Fs afero.Fs
}

func NewMemFS(t *testing.T) *MemFS {
	return &MemFS{t: t, Fs: afero.NewMemMapFs()}
}

// WriteFile creates path and its parents with content, mode 0644 and
// modification time Epoch.
func (m *MemFS) WriteFile(path, content string) {
	m.t.Helper()
	m.WriteFileAt(path, content, Epoch)
}

// WriteFileAt is WriteFile with an explicit modification time.
func (m *MemFS) WriteFileAt(path, content string, mtime time.Time) {
	m.t.Helper()
	if err := m.Fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		m.t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(m.Fs, path, []byte(content), 0644); err != nil {
		m.t.Fatalf("write %s: %v", path, err)
	}
	m.Touch(path, mtime)
}

// Touch sets the modification time of path.
func (m *MemFS) Touch(path string, mtime time.Time) {
	m.t.Helper()
	if err := m.Fs.Chtimes(path, mtime, mtime); err != nil {
		m.t.Fatalf("chtimes %s: %v", path, err)
	}
}

// Chmod changes the permission bits of path.
func (m *MemFS) Chmod(path string, perm uint32) {
	m.t.Helper()
	if err := m.Fs.Chmod(path, os.FileMode(perm)); err != nil {
		m.t.Fatalf("chmod %s: %v", path, err)
	}
}

// Remove deletes path and everything under it.
func (m *MemFS) Remove(path string) {
	m.t.Helper()
	if err := m.Fs.RemoveAll(path); err != nil {
		m.t.Fatalf("remove %s: %v", path, err)
	}
}

// Walker returns a crawler over the in-memory tree with small batches, so
// tests exercise several sink calls.
func (m *MemFS) Walker() *crawler.Crawler {
	return crawler.New(m.Fs, crawler.Options{LowWater: 4, HighWater: 8, FlushSize: 3})
}

// HashOf returns the content hash the crawler records for data.
func HashOf(data string) model.Hash {
	return model.Hash(sha256.Sum256([]byte(data)))
}
