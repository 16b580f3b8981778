package fim

import (
	"context"
	"fmt"
	"strings"
)

// BeginRun records the start of a mutating operation. The returned run
// carries the sequence number assigned by the store.
func (s *FIMService) BeginRun(ctx context.Context, operation string, roots []string) (*Run, error) {
	run := &Run{
		ID:        s.idgen.New(),
		Operation: operation,
		Roots:     strings.Join(roots, ","),
		Status:    RunStatusRunning,
		StartedAt: s.clock.Now().UTC(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	s.logger.Debug("run started", "run_id", run.ID, "seq", run.Seq, "operation", operation)
	return run, nil
}

// FinishRun stores the outcome of run. opErr marks the run as failed.
func (s *FIMService) FinishRun(ctx context.Context, run *Run, counts Counts, opErr error) error {
	run.Status = RunStatusSuccess
	if opErr != nil {
		run.Status = RunStatusError
	}
	run.FinishedAt = s.clock.Now().UTC()
	run.Counts = counts

	// The operation's own context may already be cancelled; the outcome
	// is still worth recording.
	if err := s.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("recording run outcome: %w", err)
	}
	s.logger.Debug("run finished", "run_id", run.ID, "status", run.Status, "duration", run.Duration())
	return nil
}

// LatestRunSeq returns the sequence of the newest run, or 0 when none has
// been recorded. It is the version an archived baseline is tagged with.
func (s *FIMService) LatestRunSeq(ctx context.Context) (int64, error) {
	seq, err := s.store.MaxRunSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading latest run: %w", err)
	}
	return seq, nil
}
