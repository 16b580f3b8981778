package fim

import (
	"context"
	"fmt"

	"fim-go/internal/crawler"
	"fim-go/internal/model"
)

// compareBatchSize is how many entries of the observed store are checked
// against the baseline per lookup transaction.
const compareBatchSize = 128

// Walker produces snapshot records for filesystem roots.
type Walker interface {
	Walk(ctx context.Context, roots []string, sink crawler.Sink) error
}

// FIMService is the orchestration layer that runs the integrity operations
// needed by the CLI against one snapshot store.
type FIMService struct {
	store     SnapshotStore
	walker    Walker
	vault     Vault
	encryptor Encryptor
	reporter  Reporter
	logger    Logger
	clock     Clock
	idgen     IDGenerator
}

// NewFIMService creates a FIMService. vault and encryptor may be nil when
// baselines are not archived; a nil reporter or logger discards output.
func NewFIMService(store SnapshotStore, walker Walker, vault Vault, encryptor Encryptor, reporter Reporter, logger Logger, clock Clock, idgen IDGenerator) *FIMService {
	if reporter == nil {
		reporter = discard
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	return &FIMService{
		store:     store,
		walker:    walker,
		vault:     vault,
		encryptor: encryptor,
		reporter:  reporter,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// Create walks roots and stores every entry. The store is expected to be
// new; entries already present are overwritten.
func (s *FIMService) Create(ctx context.Context, roots []string) (Counts, error) {
	var counts Counts
	s.logger.Info("create started", "roots", roots)

	sink := &populateSink{store: s.store, counts: &counts, logger: s.logger}
	if err := s.walker.Walk(ctx, roots, sink); err != nil {
		return counts, fmt.Errorf("walking roots: %w", err)
	}

	s.logger.Info("create finished", "added", counts.Added)
	return counts, nil
}

// Update walks roots, upserts every entry and reports new and changed
// paths. Afterwards every stored path the walk did not observe is removed.
func (s *FIMService) Update(ctx context.Context, roots []string) (Counts, error) {
	var counts Counts
	s.logger.Info("update started", "roots", roots)

	sink := &mergeSink{store: s.store, reporter: s.reporter, counts: &counts, seen: make(map[string]struct{})}
	if err := s.walker.Walk(ctx, roots, sink); err != nil {
		return counts, fmt.Errorf("walking roots: %w", err)
	}

	var stale []string
	err := s.store.ForEach(ctx, func(e model.Entry) error {
		if _, ok := sink.seen[e.Path]; !ok {
			stale = append(stale, e.Path)
		}
		return nil
	})
	if err != nil {
		return counts, fmt.Errorf("scanning for removed paths: %w", err)
	}

	if len(stale) > 0 {
		n, err := s.store.RemoveBatch(ctx, stale)
		if err != nil {
			return counts, fmt.Errorf("pruning removed paths: %w", err)
		}
		counts.Removed = int64(n)
		for _, p := range stale {
			s.reporter.Report(Event{Kind: EventPruned, Path: p})
		}
	}

	s.logger.Info("update finished", "processed", counts.Processed, "added", counts.Added, "changed", counts.Changed, "removed", counts.Removed)
	return counts, nil
}

// Check walks roots and compares every entry with the store without
// modifying it. Paths the store has but the walk did not observe are
// reported as removed.
func (s *FIMService) Check(ctx context.Context, roots []string, compareTime bool) (Counts, error) {
	var counts Counts
	s.logger.Info("check started", "roots", roots, "compare_time", compareTime)

	sink := s.newCompareSink(s.store, &counts, compareTime)
	if err := s.walker.Walk(ctx, roots, sink); err != nil {
		return counts, fmt.Errorf("walking roots: %w", err)
	}
	if err := sink.reportUnseen(ctx); err != nil {
		return counts, fmt.Errorf("scanning for removed paths: %w", err)
	}

	s.logger.Info("check finished", "checked", counts.Processed, "unknown", counts.Added, "changed", counts.Changed, "removed", counts.Removed)
	return counts, nil
}

// Compare checks the service's store against baseline, the expected state.
// Entries of the service's store play the part of a fresh walk.
func (s *FIMService) Compare(ctx context.Context, baseline SnapshotStore, compareTime bool) (Counts, error) {
	var counts Counts
	s.logger.Info("compare started", "compare_time", compareTime)

	sink := s.newCompareSink(baseline, &counts, compareTime)
	batch := make([]model.Entry, 0, compareBatchSize)
	err := s.store.ForEach(ctx, func(e model.Entry) error {
		batch = append(batch, e)
		if len(batch) < compareBatchSize {
			return nil
		}
		err := sink.Consume(ctx, batch)
		batch = batch[:0]
		return err
	})
	if err == nil && len(batch) > 0 {
		err = sink.Consume(ctx, batch)
	}
	if err != nil {
		return counts, fmt.Errorf("comparing stores: %w", err)
	}
	if err := sink.reportUnseen(ctx); err != nil {
		return counts, fmt.Errorf("scanning for removed paths: %w", err)
	}

	s.logger.Info("compare finished", "checked", counts.Processed, "unknown", counts.Added, "changed", counts.Changed, "removed", counts.Removed)
	return counts, nil
}

// List reports every stored entry in path order.
func (s *FIMService) List(ctx context.Context) (Counts, error) {
	var counts Counts
	err := s.store.ForEach(ctx, func(e model.Entry) error {
		counts.Processed++
		s.reporter.Report(Event{Kind: EventListed, Path: e.Path, Record: e.Record})
		return nil
	})
	if err != nil {
		return counts, fmt.Errorf("listing store: %w", err)
	}
	return counts, nil
}

// History returns the most recent runs recorded in the store, newest first.
func (s *FIMService) History(ctx context.Context, limit int) ([]*Run, error) {
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *FIMService) newCompareSink(baseline SnapshotStore, counts *Counts, compareTime bool) *compareSink {
	return &compareSink{
		baseline:    baseline,
		reporter:    s.reporter,
		counts:      counts,
		seen:        make(map[string]struct{}),
		compareTime: compareTime,
	}
}
