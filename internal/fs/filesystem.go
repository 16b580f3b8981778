package fs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// NewOSFilesystem returns the real filesystem. The crawler only needs the
// afero.Fs surface plus the optional Lstater and LinkReader interfaces,
// which the OS implementation provides.
func NewOSFilesystem() afero.Fs {
	return afero.NewOsFs()
}

// ResolveRoot turns a raw root argument into an absolute, cleaned path. The
// path is not required to exist; missing roots are reported by the crawler.
func ResolveRoot(rawPath string) (string, error) {
	if strings.TrimSpace(rawPath) == "" {
		return "", fmt.Errorf("empty path")
	}
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	return absPath, nil
}

// SplitList splits a comma separated flag value, dropping empty items.
func SplitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
