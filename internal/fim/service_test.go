package fim_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fim-go/internal/crawler"
	"fim-go/internal/fim"
	"fim-go/internal/model"
	"fim-go/internal/testutil"
)

type harness struct {
	fs       *testutil.MemFS
	store    fim.SnapshotStore
	reporter *testutil.RecordingReporter
	clock    *testutil.StubClock
	svc      *fim.FIMService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		fs:       testutil.NewMemFS(t),
		store:    testutil.NewTestStore(t),
		reporter: &testutil.RecordingReporter{},
		clock:    testutil.FixedClock(),
	}
	h.svc = fim.NewFIMService(h.store, h.fs.Walker(), testutil.NewTestVault(), testutil.NewTestEncryptor(),
		h.reporter, fim.NewNopLogger(), h.clock, testutil.NewStubIDGenerator())
	return h
}

func (h *harness) populate() {
	h.fs.WriteFile("/data/a.txt", "alpha")
	h.fs.WriteFile("/data/b.txt", "bravo")
	h.fs.WriteFile("/data/sub/c.txt", "charlie")
}

var roots = []string{"/data"}

func TestFIMService_Create(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()

	counts, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)
	assert.EqualValues(t, 4, counts.Added, "three files and one directory")

	rec, err := h.store.Get(ctx, "/data/a.txt")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.KindFile, rec.Kind)
	assert.Equal(t, testutil.HashOf("alpha"), rec.Hash)
	assert.EqualValues(t, 5, rec.Size)
	assert.EqualValues(t, testutil.Epoch.Unix(), rec.Modified)

	rec, err = h.store.Get(ctx, "/data")
	require.NoError(t, err)
	assert.Nil(t, rec, "a directory root is not recorded itself")
}

func TestFIMService_CheckClean(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	counts, err := h.svc.Check(ctx, roots, false)
	require.NoError(t, err)
	assert.Equal(t, fim.Counts{Processed: 4}, counts)
	assert.Len(t, h.reporter.Paths(fim.EventUnchanged), 4)
}

func TestFIMService_CheckDetectsDrift(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	h.fs.WriteFile("/data/a.txt", "tampered")
	h.fs.Remove("/data/b.txt")
	h.fs.WriteFile("/data/sub/new.txt", "dropped in")

	counts, err := h.svc.Check(ctx, roots, false)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Changed)
	assert.EqualValues(t, 1, counts.Added)
	assert.EqualValues(t, 1, counts.Removed)

	assert.Equal(t, []string{"/data/a.txt"}, h.reporter.Paths(fim.EventChanged))
	assert.Equal(t, []string{"/data/sub/new.txt"}, h.reporter.Paths(fim.EventUnknown))
	assert.Equal(t, []string{"/data/b.txt"}, h.reporter.Paths(fim.EventRemoved))

	ev, ok := h.reporter.Find(fim.EventChanged, "/data/a.txt")
	require.True(t, ok)
	require.NotNil(t, ev.Change)
	assert.Equal(t, fim.FieldHash, ev.Change.Deltas[0].Field)

	// check never writes
	rec, err := h.store.Get(ctx, "/data/b.txt")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestFIMService_CheckCompareTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	h.fs.Touch("/data/a.txt", testutil.Epoch.Add(time.Hour))

	_, err = h.svc.Check(ctx, roots, false)
	require.NoError(t, err)
	assert.Empty(t, h.reporter.Paths(fim.EventChanged))

	h.reporter.Reset()
	_, err = h.svc.Check(ctx, roots, true)
	require.NoError(t, err)
	ev, ok := h.reporter.Find(fim.EventChanged, "/data/a.txt")
	require.True(t, ok)
	assert.True(t, ev.Change.TimeOnly())
}

func TestFIMService_Update(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	h.fs.WriteFile("/data/a.txt", "alpha v2")
	h.fs.Chmod("/data/b.txt", 0600)
	h.fs.Remove("/data/sub")
	h.fs.WriteFile("/data/d.txt", "delta")

	counts, err := h.svc.Update(ctx, roots)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts.Added)
	assert.EqualValues(t, 2, counts.Removed)
	assert.Equal(t, []string{"/data/d.txt"}, h.reporter.Paths(fim.EventAdded))
	assert.Equal(t, []string{"/data/sub", "/data/sub/c.txt"}, h.reporter.Paths(fim.EventPruned))
	assert.Subset(t, h.reporter.Paths(fim.EventUpdated), []string{"/data/a.txt", "/data/b.txt"})

	n, err := h.store.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	rec, err := h.store.Get(ctx, "/data/b.txt")
	require.NoError(t, err)
	assert.EqualValues(t, 0o100600, rec.Permissions)

	h.reporter.Reset()
	counts, err = h.svc.Check(ctx, roots, false)
	require.NoError(t, err)
	assert.Zero(t, counts.Changed+counts.Added+counts.Removed, "store matches disk after update")
}

func TestFIMService_UpdateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	h.fs.WriteFile("/data/a.txt", "alpha v2")
	h.fs.Touch("/data/b.txt", testutil.Epoch.Add(time.Hour))
	h.fs.Remove("/data/sub/c.txt")
	h.fs.WriteFile("/data/e.txt", "echo")

	first, err := h.svc.Update(ctx, roots)
	require.NoError(t, err)
	assert.NotZero(t, first.Added+first.Changed+first.Removed)

	h.reporter.Reset()
	second, err := h.svc.Update(ctx, roots)
	require.NoError(t, err)
	assert.Equal(t, first.Processed, second.Processed)
	assert.Zero(t, second.Added)
	assert.Zero(t, second.Changed)
	assert.Zero(t, second.Removed)
	assert.Empty(t, h.reporter.Events())
}

func TestFIMService_Compare(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	baseline := testutil.NewTestStore(t)
	base := fim.NewFIMService(baseline, h.fs.Walker(), nil, nil, nil,
		fim.NewNopLogger(), h.clock, testutil.NewStubIDGenerator())
	_, err = base.Create(ctx, roots)
	require.NoError(t, err)

	h.fs.WriteFile("/data/b.txt", "bravo v2")
	h.fs.WriteFile("/data/e.txt", "echo")
	h.fs.Remove("/data/a.txt")
	_, err = h.svc.Update(ctx, roots)
	require.NoError(t, err)

	h.reporter.Reset()
	counts, err := h.svc.Compare(ctx, baseline, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/b.txt"}, h.reporter.Paths(fim.EventChanged))
	assert.Equal(t, []string{"/data/e.txt"}, h.reporter.Paths(fim.EventUnknown))
	assert.Equal(t, []string{"/data/a.txt"}, h.reporter.Paths(fim.EventRemoved))
	assert.EqualValues(t, 4, counts.Processed)
}

func TestFIMService_CompareManyEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var entries []model.Entry
	for i := range 300 {
		entries = append(entries, model.Entry{
			Path:   "/bulk/" + string(rune('a'+i%26)) + "/" + time.Duration(i).String(),
			Record: model.NewDirRecord(model.Meta{Permissions: 0o40755}),
		})
	}
	_, err := h.store.PutBatch(ctx, entries)
	require.NoError(t, err)

	baseline := testutil.NewTestStore(t)
	_, err = baseline.PutBatch(ctx, entries[:250])
	require.NoError(t, err)

	counts, err := h.svc.Compare(ctx, baseline, false)
	require.NoError(t, err)
	assert.EqualValues(t, 300, counts.Processed)
	assert.EqualValues(t, 50, counts.Added)
	assert.Zero(t, counts.Removed)
}

func TestFIMService_List(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.populate()
	_, err := h.svc.Create(ctx, roots)
	require.NoError(t, err)

	counts, err := h.svc.List(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, counts.Processed)

	var listed []string
	for _, e := range h.reporter.Events() {
		listed = append(listed, e.Path)
	}
	assert.Equal(t, []string{"/data/a.txt", "/data/b.txt", "/data/sub", "/data/sub/c.txt"}, listed)
}

type failingWalker struct{}

func (failingWalker) Walk(context.Context, []string, crawler.Sink) error {
	return errors.New("disk on fire")
}

func TestFIMService_WalkFailure(t *testing.T) {
	store := testutil.NewTestStore(t)
	svc := fim.NewFIMService(store, failingWalker{}, nil, nil, &testutil.RecordingReporter{},
		fim.NewNopLogger(), testutil.FixedClock(), testutil.NewStubIDGenerator())

	_, err := svc.Update(context.Background(), roots)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestFIMService_Runs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	seq, err := h.svc.LatestRunSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	run, err := h.svc.BeginRun(ctx, "create", roots)
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.EqualValues(t, 1, run.Seq)

	h.clock.Advance(3 * time.Second)
	require.NoError(t, h.svc.FinishRun(ctx, run, fim.Counts{Processed: 7, Added: 7}, nil))

	run2, err := h.svc.BeginRun(ctx, "update", roots)
	require.NoError(t, err)
	require.NoError(t, h.svc.FinishRun(ctx, run2, fim.Counts{}, errors.New("interrupted")))

	runs, err := h.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "update", runs[0].Operation)
	assert.Equal(t, fim.RunStatusError, runs[0].Status)
	assert.Equal(t, fim.RunStatusSuccess, runs[1].Status)
	assert.EqualValues(t, 7, runs[1].Counts.Added)
	assert.Equal(t, 3*time.Second, runs[1].Duration())
	assert.Equal(t, "/data", runs[1].Roots)

	seq, err = h.svc.LatestRunSeq(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, seq)
}
