//go:build !unix

package fs

import "io/fs"

// NativeMode reduces the permission model to the read-only flag: 1 when
// the entry is not writable by its owner, 0 otherwise.
func NativeMode(info fs.FileInfo) uint32 {
	if info.Mode().Perm()&0o200 == 0 {
		return 1
	}
	return 0
}
