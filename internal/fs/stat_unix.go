//go:build unix

package fs

import (
	"io/fs"
	"syscall"
)

// NativeMode returns the full st_mode of the entry (type bits and
// permission bits), the same value `stat -c %f` prints in hex. FileInfo
// values that do not come from the OS, such as afero's in-memory
// filesystem, fall back to a mode synthesized from the Go file mode.
func NativeMode(info fs.FileInfo) uint32 {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint32(stat.Mode)
	}
	return synthesizeMode(info.Mode())
}
