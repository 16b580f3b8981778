package model

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"
)

// Hash is a raw SHA-256 digest of a file's contents.
type Hash [32]byte

// ParseHash decodes a 64 character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decoding hash: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Compare orders hashes by their raw bytes.
func (h Hash) Compare(other Hash) int { return bytes.Compare(h[:], other[:]) }

// Kind is the variant tag of a Record.
type Kind uint8

const (
	KindFile    Kind = 1
	KindSymlink Kind = 2
	KindDir     Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "File"
	case KindSymlink:
		return "Symlink"
	case KindDir:
		return "Directory"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Meta holds the attributes shared by every record variant.
type Meta struct {
	Permissions uint32 // normalized platform mode, see fs.NativeMode
	Modified    uint64 // seconds since the Unix epoch, 0 when unavailable
	Size        uint64
}

// Record is the snapshot of a single filesystem entry. Only the fields of
// its Kind are meaningful: Hash for files, Target for symlinks. Records are
// comparable with == and two records are equal when their variant and every
// field match.
type Record struct {
	Kind   Kind
	Hash   Hash
	Target string
	Meta
}

func NewFileRecord(hash Hash, meta Meta) Record {
	return Record{Kind: KindFile, Hash: hash, Meta: meta}
}

func NewSymlinkRecord(target string, meta Meta) Record {
	return Record{Kind: KindSymlink, Target: target, Meta: meta}
}

func NewDirRecord(meta Meta) Record {
	return Record{Kind: KindDir, Meta: meta}
}

// String renders the record the way it appears in reports, e.g.
//
//	File hash: 9f86...0a08 perm: 100644 size: 4 modified: 2024-01-15 10:30:00 UTC
func (r Record) String() string {
	attrs := fmt.Sprintf("perm: %o size: %d modified: %s", r.Permissions, r.Size, FormatModified(r.Modified))
	switch r.Kind {
	case KindFile:
		return fmt.Sprintf("File hash: %s %s", r.Hash, attrs)
	case KindSymlink:
		return fmt.Sprintf("Symlink -> %s %s", r.Target, attrs)
	default:
		return fmt.Sprintf("%s %s", r.Kind, attrs)
	}
}

// FormatModified renders a modification timestamp in UTC.
func FormatModified(secs uint64) string {
	if secs > uint64(maxUnixSeconds) {
		return "#ERROR#"
	}
	return time.Unix(int64(secs), 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// maxUnixSeconds is the last second of year 9999.
const maxUnixSeconds = 253402300799

// Entry pairs an absolute path with its record.
type Entry struct {
	Path   string
	Record Record
}
