package fim

import (
	"context"
	"fmt"

	"fim-go/internal/model"
)

// Counts summarizes one operation.
type Counts struct {
	Processed int64 // entries observed
	Added     int64 // new paths (stored by create/update, reported by check)
	Changed   int64 // reported changes
	Removed   int64 // pruned by update, reported missing by check
}

// The sinks below implement crawler.Sink. The crawler calls Consume from
// a single goroutine, so they keep their state without locking.

// populateSink stores every batch as-is.
type populateSink struct {
	store  SnapshotStore
	counts *Counts
	logger Logger
}

func (p *populateSink) Consume(ctx context.Context, batch []model.Entry) error {
	n, err := p.store.PutBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("storing batch: %w", err)
	}
	p.counts.Processed += int64(n)
	p.counts.Added += int64(n)
	p.logger.Debug("stored batch", "entries", n)
	return nil
}

// mergeSink upserts every batch and reports what each entry replaced.
type mergeSink struct {
	store    SnapshotStore
	reporter Reporter
	counts   *Counts
	seen     map[string]struct{}
}

func (m *mergeSink) Consume(ctx context.Context, batch []model.Entry) error {
	priors, err := m.store.ReplaceBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("merging batch: %w", err)
	}
	for i, e := range batch {
		m.seen[e.Path] = struct{}{}
		m.counts.Processed++
		prior := priors[i]
		switch {
		case prior == nil:
			m.counts.Added++
			m.reporter.Report(Event{Kind: EventAdded, Path: e.Path, Record: e.Record})
		case *prior != e.Record:
			m.counts.Changed++
			m.reporter.Report(Event{
				Kind:   EventUpdated,
				Path:   e.Path,
				Record: e.Record,
				Change: &Change{Old: *prior, New: e.Record},
			})
		}
	}
	return nil
}

// compareSink checks every batch against a baseline without writing.
type compareSink struct {
	baseline    SnapshotStore
	reporter    Reporter
	counts      *Counts
	seen        map[string]struct{}
	compareTime bool
}

func (c *compareSink) Consume(ctx context.Context, batch []model.Entry) error {
	paths := make([]string, len(batch))
	for i, e := range batch {
		paths[i] = e.Path
	}
	priors, err := c.baseline.LookupBatch(ctx, paths)
	if err != nil {
		return fmt.Errorf("looking up batch: %w", err)
	}
	for i, e := range batch {
		c.seen[e.Path] = struct{}{}
		c.counts.Processed++
		prior := priors[i]
		if prior == nil {
			c.counts.Added++
			c.reporter.Report(Event{Kind: EventUnknown, Path: e.Path, Record: e.Record})
			continue
		}
		change, reportable := Diff(*prior, e.Record, c.compareTime)
		if !reportable {
			c.reporter.Report(Event{Kind: EventUnchanged, Path: e.Path, Record: e.Record})
			continue
		}
		c.counts.Changed++
		c.reporter.Report(Event{Kind: EventChanged, Path: e.Path, Record: e.Record, Change: &change})
	}
	return nil
}

// reportUnseen reports every baseline entry the walk did not observe.
func (c *compareSink) reportUnseen(ctx context.Context) error {
	return c.baseline.ForEach(ctx, func(e model.Entry) error {
		if _, ok := c.seen[e.Path]; ok {
			return nil
		}
		c.counts.Removed++
		c.reporter.Report(Event{Kind: EventRemoved, Path: e.Path, Record: e.Record})
		return nil
	})
}
