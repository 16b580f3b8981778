package fs

import (
	"path/filepath"
	"sort"
)

// ExcludeSet decides which paths the crawler must not visit. A path is
// excluded when it equals one of the exact paths or matches an ignore
// pattern. Excluding a directory excludes its whole subtree because the
// crawler never descends into it.
type ExcludeSet struct {
	exact   map[string]struct{}
	matcher *IgnoreMatcher
}

// NewExcludeSet builds an ExcludeSet from exact paths and glob patterns.
// Exact paths are made absolute and cleaned.
func NewExcludeSet(paths []string, patterns []string) *ExcludeSet {
	s := &ExcludeSet{
		exact:   make(map[string]struct{}, len(paths)),
		matcher: NewIgnoreMatcher(patterns),
	}
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

// Add excludes an exact path. Relative paths are resolved against the
// working directory.
func (s *ExcludeSet) Add(path string) {
	if path == "" {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.exact[filepath.Clean(path)] = struct{}{}
}

// AddDatabase excludes a snapshot database so a walk never records the
// store it is writing to. Both the given path and its canonical form are
// excluded, together with the SQLite write-ahead log side files.
func (s *ExcludeSet) AddDatabase(dbPath string) {
	candidates := []string{dbPath}
	if canonical, err := filepath.EvalSymlinks(dbPath); err == nil {
		candidates = append(candidates, canonical)
	}
	for _, p := range candidates {
		s.Add(p)
		s.Add(p + "-wal")
		s.Add(p + "-shm")
		s.Add(p + "-journal")
	}
}

// Contains reports whether path is excluded.
func (s *ExcludeSet) Contains(path string) bool {
	if _, ok := s.exact[filepath.Clean(path)]; ok {
		return true
	}
	return s.matcher.Match(path)
}

// Paths returns the exact excluded paths in sorted order.
func (s *ExcludeSet) Paths() []string {
	out := make([]string, 0, len(s.exact))
	for p := range s.exact {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
