package model

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/multiformats/go-varint"
)

// codecVersion prefixes every encoded value so the layout can evolve.
const codecVersion byte = 1

// ErrTrailingBytes is returned when a value decodes cleanly but input remains.
var ErrTrailingBytes = errors.New("trailing bytes after value")

// EncodingError reports a value that could not be encoded or decoded.
type EncodingError struct {
	What string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %v", e.What, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// MarshalBinary encodes the record as
//
//	version | kind | uvarint perms | uvarint modified | uvarint size | payload
//
// where payload is the 32 raw hash bytes for files, a uvarint length and
// UTF-8 target for symlinks, and empty for directories.
func (r Record) MarshalBinary() ([]byte, error) {
	if r.Modified > varint.MaxValueUvarint63 || r.Size > varint.MaxValueUvarint63 {
		return nil, &EncodingError{What: "record", Err: varint.ErrOverflow}
	}

	buf := make([]byte, 0, 2+3*varint.MaxLenUvarint63+len(r.Hash)+len(r.Target))
	buf = append(buf, codecVersion, byte(r.Kind))
	buf = append(buf, varint.ToUvarint(uint64(r.Permissions))...)
	buf = append(buf, varint.ToUvarint(r.Modified)...)
	buf = append(buf, varint.ToUvarint(r.Size)...)

	switch r.Kind {
	case KindFile:
		buf = append(buf, r.Hash[:]...)
	case KindSymlink:
		if !utf8.ValidString(r.Target) {
			return nil, &EncodingError{What: "record", Err: errors.New("symlink target is not valid UTF-8")}
		}
		buf = append(buf, varint.ToUvarint(uint64(len(r.Target)))...)
		buf = append(buf, r.Target...)
	case KindDir:
	default:
		return nil, &EncodingError{What: "record", Err: fmt.Errorf("unknown kind %d", r.Kind)}
	}
	return buf, nil
}

// UnmarshalRecord decodes a record produced by Record.MarshalBinary. Corrupt,
// truncated or over-long input yields an *EncodingError.
func UnmarshalRecord(data []byte) (Record, error) {
	d := decoder{buf: data}
	r, err := d.record()
	if err == nil {
		err = d.finish()
	}
	if err != nil {
		return Record{}, &EncodingError{What: "record", Err: err}
	}
	return r, nil
}

// MarshalBinary encodes the entry as
//
//	version | found | [score] | uvarint zigzag(entry time)
func (e CacheEntry) MarshalBinary() ([]byte, error) {
	zz := zigzag(e.EntryTime)
	if zz > varint.MaxValueUvarint63 {
		return nil, &EncodingError{What: "cache entry", Err: varint.ErrOverflow}
	}

	buf := make([]byte, 0, 3+varint.MaxLenUvarint63)
	buf = append(buf, codecVersion)
	if e.Found {
		buf = append(buf, 1, e.Score)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, varint.ToUvarint(zz)...)
	return buf, nil
}

// UnmarshalCacheEntry decodes an entry produced by CacheEntry.MarshalBinary.
func UnmarshalCacheEntry(data []byte) (CacheEntry, error) {
	d := decoder{buf: data}
	e, err := d.cacheEntry()
	if err == nil {
		err = d.finish()
	}
	if err != nil {
		return CacheEntry{}, &EncodingError{What: "cache entry", Err: err}
	}
	return e, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, varint.ErrUnderflow
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n, err := varint.FromUvarint(d.buf[d.off:])
	if err != nil {
		return 0, err
	}
	d.off += n
	return v, nil
}

func (d *decoder) bytes(n uint64) ([]byte, error) {
	if n > uint64(len(d.buf)-d.off) {
		return nil, varint.ErrUnderflow
	}
	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *decoder) version() error {
	v, err := d.byte()
	if err != nil {
		return err
	}
	if v != codecVersion {
		return fmt.Errorf("unsupported version %d", v)
	}
	return nil
}

func (d *decoder) record() (Record, error) {
	var r Record
	if err := d.version(); err != nil {
		return r, err
	}
	k, err := d.byte()
	if err != nil {
		return r, err
	}
	r.Kind = Kind(k)

	perms, err := d.uvarint()
	if err != nil {
		return r, err
	}
	if perms > 1<<32-1 {
		return r, fmt.Errorf("permissions %d overflow uint32", perms)
	}
	r.Permissions = uint32(perms)
	if r.Modified, err = d.uvarint(); err != nil {
		return r, err
	}
	if r.Size, err = d.uvarint(); err != nil {
		return r, err
	}

	switch r.Kind {
	case KindFile:
		h, err := d.bytes(uint64(len(r.Hash)))
		if err != nil {
			return r, err
		}
		copy(r.Hash[:], h)
	case KindSymlink:
		n, err := d.uvarint()
		if err != nil {
			return r, err
		}
		t, err := d.bytes(n)
		if err != nil {
			return r, err
		}
		if !utf8.Valid(t) {
			return r, errors.New("symlink target is not valid UTF-8")
		}
		r.Target = string(t)
	case KindDir:
	default:
		return r, fmt.Errorf("unknown kind %d", k)
	}
	return r, nil
}

func (d *decoder) cacheEntry() (CacheEntry, error) {
	var e CacheEntry
	if err := d.version(); err != nil {
		return e, err
	}
	found, err := d.byte()
	if err != nil {
		return e, err
	}
	switch found {
	case 0:
	case 1:
		e.Found = true
		if e.Score, err = d.byte(); err != nil {
			return e, err
		}
	default:
		return e, fmt.Errorf("invalid found flag %d", found)
	}
	zz, err := d.uvarint()
	if err != nil {
		return e, err
	}
	e.EntryTime = unzigzag(zz)
	return e, nil
}

func (d *decoder) finish() error {
	if d.off != len(d.buf) {
		return ErrTrailingBytes
	}
	return nil
}

func zigzag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }

func unzigzag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }
