package fim

import (
	"context"
	"time"

	"fim-go/internal/model"
)

// SnapshotStore is the durable mapping from absolute path to Record.
// Every batch method runs in a single transaction: either the whole batch
// is committed or none of it is. Readers see a consistent snapshot that is
// unaffected by a concurrent writer.
type SnapshotStore interface {
	// PutBatch inserts or overwrites every entry. Within a batch the last
	// entry for a path wins. Returns the number of entries written.
	PutBatch(ctx context.Context, entries []model.Entry) (int, error)

	// ReplaceBatch behaves like PutBatch and returns, index for index, the
	// record each entry replaced or nil when the path was new.
	ReplaceBatch(ctx context.Context, entries []model.Entry) ([]*model.Record, error)

	// Get returns the record stored for path, or nil if there is none.
	Get(ctx context.Context, path string) (*model.Record, error)

	// LookupBatch returns, index for index, the records stored for paths.
	LookupBatch(ctx context.Context, paths []string) ([]*model.Record, error)

	// ForEach calls fn for every entry in byte-wise path order. Returning
	// an error from fn stops the scan and is returned unchanged.
	ForEach(ctx context.Context, fn func(model.Entry) error) error

	// RemoveBatch deletes the given paths. Returns the number removed.
	RemoveBatch(ctx context.Context, paths []string) (int, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)

	// Run bookkeeping for mutating operations.
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	MaxRunSeq(ctx context.Context) (int64, error)

	// BackupTo writes a consistent copy of the store to destPath.
	BackupTo(destPath string) error

	Close() error
}

// Run status values.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Run records one mutating operation against a store. Seq is assigned by
// the store and doubles as the version of the archived baseline.
type Run struct {
	Seq        int64
	ID         string
	Operation  string
	Roots      string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Counts     Counts
}

// Duration returns how long a finished run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
