package crawler

import (
	"fmt"
	"io"
	"io/fs"
	"sync/atomic"
	"unicode/utf8"

	"github.com/minio/sha256-simd"
	"github.com/spf13/afero"

	fimfs "fim-go/internal/fs"
	"fim-go/internal/model"
)

// snapshot computes the record for a single entry. ok is false for entry
// types that are not recorded (devices, sockets, pipes).
func (c *Crawler) snapshot(path string) (model.Record, bool, error) {
	info, err := lstat(c.fs, path)
	if err != nil {
		return model.Record{}, false, err
	}

	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := readlink(c.fs, path)
		if err != nil {
			return model.Record{}, false, err
		}
		if !utf8.ValidString(target) {
			return model.Record{}, false, fmt.Errorf("symlink %s: target %q is not valid UTF-8", path, target)
		}
		return model.NewSymlinkRecord(target, fimfs.MetaFromInfo(info)), true, nil
	case mode.IsDir():
		return model.NewDirRecord(fimfs.MetaFromInfo(info)), true, nil
	case mode.IsRegular():
		rec, err := c.hashFile(path)
		if err != nil {
			return model.Record{}, false, err
		}
		return rec, true, nil
	default:
		c.opts.Logger.Warn("unsupported entry type", "path", path, "mode", mode.Type().String())
		return model.Record{}, false, nil
	}
}

// hashFile hashes the file contents and takes the metadata from the open
// handle, so size and hash describe the same inode.
func (c *Crawler) hashFile(path string) (model.Record, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return model.Record{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return model.Record{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	atomic.AddInt64(&c.stats.Bytes, n)

	info, err := f.Stat()
	if err != nil {
		return model.Record{}, fmt.Errorf("stat %s: %w", path, err)
	}

	var sum model.Hash
	copy(sum[:], h.Sum(nil))
	return model.NewFileRecord(sum, fimfs.MetaFromInfo(info)), nil
}

// lstat stats path without following a final symlink when the filesystem
// supports it.
func lstat(fsys afero.Fs, path string) (fs.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fsys.Stat(path)
}

func readlink(fsys afero.Fs, path string) (string, error) {
	r, ok := fsys.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("reading link %s: %w", path, afero.ErrNoReadlink)
	}
	target, err := r.ReadlinkIfPossible(path)
	if err != nil {
		return "", fmt.Errorf("reading link %s: %w", path, err)
	}
	return target, nil
}
