package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreMatcher holds glob patterns in two groups. A pattern containing a
// slash is matched against the whole path, so "/var/log/*.gz" only covers
// files directly under /var/log. Any other pattern is matched against the
// final path element.
type IgnoreMatcher struct {
	names []string
	paths []string
}

// NewIgnoreMatcher keeps the usable patterns: blank lines, '#' comments and
// globs filepath.Match rejects are dropped.
func NewIgnoreMatcher(raw []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" || p[0] == '#' {
			continue
		}
		if _, err := filepath.Match(p, ""); err != nil {
			continue
		}
		if strings.ContainsRune(p, '/') {
			m.paths = append(m.paths, p)
		} else {
			m.names = append(m.names, p)
		}
	}
	return m
}

func (m *IgnoreMatcher) Match(path string) bool {
	if path == "" {
		return false
	}
	if matchAny(m.names, filepath.Base(path)) {
		return true
	}
	return matchAny(m.paths, filepath.ToSlash(path))
}

func (m *IgnoreMatcher) Len() int { return len(m.names) + len(m.paths) }

func matchAny(globs []string, s string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, s); ok {
			return true
		}
	}
	return false
}

// ReadIgnoreFile returns the lines of an ignore file, unfiltered. A missing
// file yields no patterns.
func ReadIgnoreFile(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", path, err)
	}
	return lines, nil
}
