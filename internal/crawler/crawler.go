// Package crawler walks filesystem trees breadth first and turns every entry
// into a snapshot record. Records are computed concurrently, bounded by two
// in-flight thresholds, and handed to a Sink in batches.
package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"fim-go/internal/model"
)

const (
	DefaultLowWater  = 128
	DefaultHighWater = 128
	DefaultFlushSize = 128

	progressInterval = 500 * time.Millisecond
)

// Sink receives completed records. Each call is one batch; order inside a
// batch is completion order, not traversal order.
type Sink interface {
	Consume(ctx context.Context, batch []model.Entry) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, batch []model.Entry) error

func (f SinkFunc) Consume(ctx context.Context, batch []model.Entry) error { return f(ctx, batch) }

// Excluder reports paths that must not be visited.
type Excluder interface {
	Contains(path string) bool
}

// Logger is the structured logger the crawler reports skipped entries to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ProgressFn is called periodically with traversal statistics.
type ProgressFn func(stats Stats)

// Stats holds traversal statistics that are updated atomically during the walk.
type Stats struct {
	Entries     int64 // records produced
	Dirs        int64 // directories listed
	Bytes       int64 // file bytes hashed
	Errors      int64 // entries or directories skipped because of an error
	MaxInFlight int64 // highest number of concurrently running units
}

// Options configures a Crawler. Zero values select the defaults.
type Options struct {
	LowWater  int // collect completed units without blocking at or above this many
	HighWater int // block on the oldest unit at or above this many
	FlushSize int // deliver a batch once this many records are collected
	Exclude   Excluder
	Logger    Logger
	Progress  ProgressFn
}

// Crawler computes snapshot records for filesystem trees.
type Crawler struct {
	fs   afero.Fs
	opts Options

	stats    Stats
	inFlight atomic.Int64
}

// New creates a Crawler over fsys.
func New(fsys afero.Fs, opts Options) *Crawler {
	if opts.HighWater <= 0 {
		opts.HighWater = DefaultHighWater
	}
	if opts.LowWater <= 0 || opts.LowWater > opts.HighWater {
		opts.LowWater = min(DefaultLowWater, opts.HighWater)
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = DefaultFlushSize
	}
	if opts.Exclude == nil {
		opts.Exclude = noExclude{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	return &Crawler{fs: fsys, opts: opts}
}

// Stats returns a snapshot of the traversal statistics.
func (c *Crawler) Stats() Stats {
	return Stats{
		Entries:     atomic.LoadInt64(&c.stats.Entries),
		Dirs:        atomic.LoadInt64(&c.stats.Dirs),
		Bytes:       atomic.LoadInt64(&c.stats.Bytes),
		Errors:      atomic.LoadInt64(&c.stats.Errors),
		MaxInFlight: atomic.LoadInt64(&c.stats.MaxInFlight),
	}
}

// Walk traverses every root and delivers the resulting records to sink.
// Directory roots contribute their descendants but not themselves; any other
// root (file or symlink) is a single entry. A path reachable from more than
// one root is emitted once. Entries that cannot be read are logged and
// skipped; only a sink failure or context cancellation aborts the walk.
func (c *Crawler) Walk(ctx context.Context, roots []string, sink Sink) error {
	if c.opts.Progress != nil {
		stop := c.startProgress()
		defer stop()
	}

	w := &walk{
		c:    c,
		sink: sink,
		seen: make(map[string]struct{}),
	}
	for _, root := range roots {
		if err := w.root(ctx, filepath.Clean(root)); err != nil {
			return err
		}
	}
	return w.finish(ctx)
}

func (c *Crawler) startProgress() func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.opts.Progress(c.Stats())
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
		c.opts.Progress(c.Stats())
	}
}

// unit is one outstanding record computation.
type unit struct {
	path string
	done chan result
}

type result struct {
	entry model.Entry
	ok    bool // false for entries that produce no record
	err   error
}

// walk is the state of a single Walk call. It is only touched by the
// goroutine running Walk; units communicate through their done channels.
type walk struct {
	c       *Crawler
	sink    Sink
	seen    map[string]struct{}
	pending []*unit
	batch   []model.Entry
}

func (w *walk) root(ctx context.Context, root string) error {
	log := w.c.opts.Logger
	if w.c.opts.Exclude.Contains(root) {
		log.Warn("excluding top dir", "path", root)
		return nil
	}

	info, err := lstat(w.c.fs, root)
	if err != nil {
		atomic.AddInt64(&w.c.stats.Errors, 1)
		log.Warn("root not accessible", "path", root, "error", err)
		return nil
	}
	if !info.IsDir() || info.Mode()&fs.ModeSymlink != 0 {
		return w.dispatch(ctx, root)
	}

	queue := []string{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := queue[0]
		queue = queue[1:]

		children, err := afero.ReadDir(w.c.fs, dir)
		if err != nil {
			atomic.AddInt64(&w.c.stats.Errors, 1)
			log.Error("reading directory", "path", dir, "error", err)
			continue
		}
		atomic.AddInt64(&w.c.stats.Dirs, 1)

		for _, child := range children {
			path := filepath.Join(dir, child.Name())
			if w.c.opts.Exclude.Contains(path) {
				log.Debug("skipping", "path", path)
				continue
			}
			if child.IsDir() && child.Mode()&fs.ModeSymlink == 0 {
				queue = append(queue, path)
			}
			if err := w.dispatch(ctx, path); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatch applies backpressure and then starts a unit for path.
func (w *walk) dispatch(ctx context.Context, path string) error {
	if _, ok := w.seen[path]; ok {
		return nil
	}
	w.seen[path] = struct{}{}

	if len(w.pending) >= w.c.opts.LowWater {
		w.collectReady()
	}
	for len(w.pending) >= w.c.opts.HighWater {
		w.collect(w.pending[0])
		w.pending = w.pending[1:]
	}
	if err := w.flushIfFull(ctx); err != nil {
		return err
	}

	u := &unit{path: path, done: make(chan result, 1)}
	w.pending = append(w.pending, u)
	go w.c.run(u)
	return nil
}

// collectReady gathers every unit that has already finished without waiting.
func (w *walk) collectReady() {
	remaining := w.pending[:0]
	for _, u := range w.pending {
		select {
		case r := <-u.done:
			w.accept(u, r)
		default:
			remaining = append(remaining, u)
		}
	}
	clear(w.pending[len(remaining):])
	w.pending = remaining
}

// collect blocks until u has finished.
func (w *walk) collect(u *unit) {
	w.accept(u, <-u.done)
}

func (w *walk) accept(u *unit, r result) {
	switch {
	case r.err != nil:
		atomic.AddInt64(&w.c.stats.Errors, 1)
		w.c.opts.Logger.Error("reading entry", "path", u.path, "error", r.err)
	case r.ok:
		atomic.AddInt64(&w.c.stats.Entries, 1)
		w.batch = append(w.batch, r.entry)
	}
}

func (w *walk) flushIfFull(ctx context.Context) error {
	if len(w.batch) < w.c.opts.FlushSize {
		return nil
	}
	return w.flush(ctx)
}

func (w *walk) flush(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}
	batch := w.batch
	w.batch = nil
	if err := w.sink.Consume(ctx, batch); err != nil {
		return fmt.Errorf("flushing %d records: %w", len(batch), err)
	}
	return nil
}

// finish waits for every outstanding unit and delivers the final batch.
func (w *walk) finish(ctx context.Context) error {
	for _, u := range w.pending {
		w.collect(u)
	}
	w.pending = nil
	return w.flush(ctx)
}

// run computes the record for one unit. It always delivers exactly one
// result so the walker never blocks forever on a unit.
func (c *Crawler) run(u *unit) {
	n := c.inFlight.Add(1)
	for {
		cur := atomic.LoadInt64(&c.stats.MaxInFlight)
		if n <= cur || atomic.CompareAndSwapInt64(&c.stats.MaxInFlight, cur, n) {
			break
		}
	}

	rec, ok, err := c.snapshot(u.path)
	c.inFlight.Add(-1)
	u.done <- result{entry: model.Entry{Path: u.path, Record: rec}, ok: ok, err: err}
}

type noExclude struct{}

func (noExclude) Contains(string) bool { return false }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
