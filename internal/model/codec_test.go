package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b + byte(i)
	}
	return h
}

func TestRecord_RoundTrip(t *testing.T) {
	meta := Meta{Permissions: 0o100644, Modified: 1705314600, Size: 4096}

	tests := []struct {
		name string
		rec  Record
	}{
		{name: "file", rec: NewFileRecord(testHash(7), meta)},
		{name: "symlink", rec: NewSymlinkRecord("../target/ñame", meta)},
		{name: "empty symlink target", rec: NewSymlinkRecord("", meta)},
		{name: "dir", rec: NewDirRecord(Meta{Permissions: 0o40755})},
		{name: "zero meta file", rec: NewFileRecord(Hash{}, Meta{})},
		{name: "max values", rec: NewFileRecord(testHash(1), Meta{Permissions: 1<<32 - 1, Modified: varint.MaxValueUvarint63, Size: varint.MaxValueUvarint63})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.rec.MarshalBinary()
			require.NoError(t, err)

			got, err := UnmarshalRecord(data)
			require.NoError(t, err)
			assert.Equal(t, tt.rec, got)
		})
	}
}

func TestUnmarshalRecord_Corrupt(t *testing.T) {
	valid, err := NewFileRecord(testHash(3), Meta{Permissions: 0o644, Modified: 10, Size: 20}).MarshalBinary()
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "bad version", data: append([]byte{9}, valid[1:]...)},
		{name: "unknown kind", data: []byte{codecVersion, 42, 0, 0, 0}},
		{name: "truncated hash", data: valid[:len(valid)-1]},
		{name: "trailing bytes", data: append(append([]byte{}, valid...), 0)},
		{name: "non-minimal varint", data: []byte{codecVersion, byte(KindDir), 0x80, 0x00, 0, 0}},
		{name: "symlink length past end", data: []byte{codecVersion, byte(KindSymlink), 0, 0, 0, 5, 'a'}},
		{name: "symlink invalid utf8", data: []byte{codecVersion, byte(KindSymlink), 0, 0, 0, 1, 0xff}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalRecord(tt.data)
			require.Error(t, err)
			var encErr *EncodingError
			assert.True(t, errors.As(err, &encErr), "want *EncodingError, got %T", err)
		})
	}
}

func TestRecord_MarshalRejectsOverflow(t *testing.T) {
	_, err := NewDirRecord(Meta{Size: 1 << 63}).MarshalBinary()
	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, varint.ErrOverflow)
}

func TestCacheEntry_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		entry CacheEntry
	}{
		{name: "found", entry: CacheEntry{Found: true, Score: 100, EntryTime: 1705314600}},
		{name: "found zero score", entry: CacheEntry{Found: true, Score: 0, EntryTime: 1}},
		{name: "not found", entry: CacheEntry{EntryTime: 1705314600}},
		{name: "negative time", entry: CacheEntry{Found: true, Score: 50, EntryTime: -3600}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.entry.MarshalBinary()
			require.NoError(t, err)

			got, err := UnmarshalCacheEntry(data)
			require.NoError(t, err)
			assert.Equal(t, tt.entry, got)
		})
	}
}

func TestUnmarshalCacheEntry_Corrupt(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":          {},
		"bad flag":       {codecVersion, 2, 0},
		"missing score":  {codecVersion, 1},
		"missing time":   {codecVersion, 0},
		"trailing bytes": {codecVersion, 0, 0, 0},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalCacheEntry(data)
			var encErr *EncodingError
			require.ErrorAs(t, err, &encErr)
		})
	}
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	found := NewFoundEntry(80, now)
	assert.False(t, found.Expired(now.Add(29*24*time.Hour)))
	assert.True(t, found.Expired(now.Add(31*24*time.Hour)))

	missing := NewNotFoundEntry(now)
	assert.False(t, missing.Expired(now.Add(6*24*time.Hour)))
	assert.True(t, missing.Expired(now.Add(8*24*time.Hour)))
}

func TestRecord_String(t *testing.T) {
	meta := Meta{Permissions: 0o100644, Modified: 1705314600, Size: 12}

	s := NewFileRecord(testHash(0), meta).String()
	assert.True(t, strings.HasPrefix(s, "File hash: 0001020304"))
	assert.Contains(t, s, "perm: 100644 size: 12 modified: 2024-01-15 10:30:00 UTC")

	assert.Equal(t, "Symlink -> /etc/hosts perm: 100644 size: 12 modified: 2024-01-15 10:30:00 UTC",
		NewSymlinkRecord("/etc/hosts", meta).String())
	assert.Equal(t, "#ERROR#", FormatModified(1<<62))
}

func TestParseHash(t *testing.T) {
	h := testHash(9)
	got, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)

	_, err = ParseHash("abcd")
	assert.Error(t, err)
	_, err = ParseHash(strings.Repeat("zz", 32))
	assert.Error(t, err)
}
