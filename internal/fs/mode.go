package fs

import (
	"io/fs"
	"time"

	"fim-go/internal/model"
)

// Unix file type bits, as found in st_mode.
const (
	modeTypeFile    = 0o100000
	modeTypeDir     = 0o040000
	modeTypeSymlink = 0o120000
)

func synthesizeMode(m fs.FileMode) uint32 {
	bits := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		bits |= 0o1000
	}
	switch {
	case m&fs.ModeSymlink != 0:
		bits |= modeTypeSymlink
	case m.IsDir():
		bits |= modeTypeDir
	case m.IsRegular():
		bits |= modeTypeFile
	}
	return bits
}

// MetaFromInfo captures the shared record attributes of an entry.
// Modification times before the epoch are recorded as 0.
func MetaFromInfo(info fs.FileInfo) model.Meta {
	return model.Meta{
		Permissions: NativeMode(info),
		Modified:    modifiedSeconds(info.ModTime()),
		Size:        uint64(max(info.Size(), 0)),
	}
}

func modifiedSeconds(t time.Time) uint64 {
	if t.IsZero() || t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
