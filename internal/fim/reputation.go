package fim

import (
	"context"
	"fmt"

	"fim-go/internal/model"
)

// Reputation lookups are started concurrently while the store is scanned.
// When more than drainHigh lookups are outstanding the scan pauses and
// waits for results until fewer than drainLow remain.
const (
	drainHigh = 32
	drainLow  = 8
)

// Querier resolves a content hash against a reputation service. found is
// false when the service does not know the hash.
type Querier interface {
	Query(ctx context.Context, hash model.Hash) (score uint8, found bool, err error)
}

// ReputationCounts summarizes a reputation check.
type ReputationCounts struct {
	Queried  int64
	Found    int64
	NotFound int64
	Failed   int64
}

type lookup struct {
	entry model.Entry
	done  chan struct{}
	score uint8
	found bool
	err   error
}

// ReputationCheck looks up the hash of every stored file. A failed lookup
// is reported and counted but does not stop the check.
func (s *FIMService) ReputationCheck(ctx context.Context, q Querier) (ReputationCounts, error) {
	var counts ReputationCounts
	var pending []*lookup

	settle := func(l *lookup) {
		<-l.done
		counts.Queried++
		switch {
		case l.err != nil:
			counts.Failed++
			s.reporter.Report(Event{Kind: EventLookupFailed, Path: l.entry.Path, Record: l.entry.Record, Err: l.err})
		case l.found:
			counts.Found++
			s.reporter.Report(Event{Kind: EventScore, Path: l.entry.Path, Record: l.entry.Record, Score: l.score})
		default:
			counts.NotFound++
			s.reporter.Report(Event{Kind: EventUnknownHash, Path: l.entry.Path, Record: l.entry.Record})
		}
	}

	s.logger.Info("reputation check started")
	err := s.store.ForEach(ctx, func(e model.Entry) error {
		if e.Record.Kind != model.KindFile {
			return nil
		}
		l := &lookup{entry: e, done: make(chan struct{})}
		go func() {
			defer close(l.done)
			l.score, l.found, l.err = q.Query(ctx, e.Record.Hash)
		}()
		pending = append(pending, l)

		if len(pending) > drainHigh {
			for len(pending) >= drainLow {
				settle(pending[0])
				pending = pending[1:]
			}
		}
		return ctx.Err()
	})

	// Outstanding lookups are always collected so no goroutine outlives
	// the call.
	for _, l := range pending {
		settle(l)
	}
	if err != nil {
		return counts, fmt.Errorf("scanning store: %w", err)
	}

	s.logger.Info("reputation check finished", "queried", counts.Queried, "found", counts.Found, "not_found", counts.NotFound, "failed", counts.Failed)
	return counts, nil
}
