package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"fim-go/internal/cache"
	"fim-go/internal/config"
	"fim-go/internal/crawler"
	"fim-go/internal/database"
	"fim-go/internal/encryption"
	"fim-go/internal/fim"
	"fim-go/internal/fs"
	"fim-go/internal/reputation"
	"fim-go/internal/vault"
)

// Options carries the per-invocation settings collected from CLI flags.
type Options struct {
	DBPath        string   // overrides database.path
	Overwrite     bool     // create replaces an existing store
	Exclude       []string // extra paths never walked
	DontExcludeDB bool     // walk the snapshot database too
	Progress      crawler.ProgressFn
	Reporter      fim.Reporter // defaults to a LogReporter
	Stderr        io.Writer    // defaults to os.Stderr
}

// FIMApp is the application layer between the CLI and FIMService.
// It constructs all dependencies from config, exposes the operations with
// raw string arguments, and records the run and archives the baseline on
// Close.
type FIMApp struct {
	cfg       *config.Config
	store     *database.SQLiteStore
	vault     fim.Vault
	encryptor fim.Encryptor
	excludes  *fs.ExcludeSet
	service   *fim.FIMService
	op        *Operation
	clock     fim.Clock
	logger    *zap.Logger
	closeLog  func() error
}

// NewFIMApp creates a fully wired FIMApp. operation names the CLI command
// and decides how the store is opened. The caller must call Close.
func NewFIMApp(ctx context.Context, cfg *config.Config, operation string, opts Options) (*FIMApp, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	clock := fim.RealClock{}

	opID := clock.Now().UTC().Format("20060102T150405Z")
	logger, closeLog, err := newLogger(cfg.LogDir, cfg.Log.Level, opID, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := newZapAdapter(logger)

	a := &FIMApp{
		cfg:      cfg,
		op:       NewOperation(operation),
		clock:    clock,
		logger:   logger,
		closeLog: closeLog,
	}
	if err := a.wire(ctx, opts, log); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *FIMApp) wire(ctx context.Context, opts Options, log fim.Logger) error {
	cfg := a.cfg

	store, err := database.NewStoreFromConfig(cfg.Database, opts.DBPath, storeMode(a.op), opts.Overwrite)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	a.store = store

	patterns := append([]string(nil), cfg.Scan.Ignore...)
	if cfg.Scan.IgnoreFile != "" {
		more, err := fs.ReadIgnoreFile(fs.NewOSFilesystem(), cfg.Scan.IgnoreFile)
		if err != nil {
			return err
		}
		patterns = append(patterns, more...)
	}
	a.excludes = fs.NewExcludeSet(append(append([]string(nil), cfg.Scan.Exclude...), opts.Exclude...), patterns)
	if !opts.DontExcludeDB && store.Path() != database.MemoryPath {
		a.excludes.AddDatabase(store.Path())
	}

	walker := crawler.New(fs.NewOSFilesystem(), crawler.Options{
		LowWater:  cfg.Scan.LowWater,
		HighWater: cfg.Scan.HighWater,
		FlushSize: cfg.Scan.FlushSize,
		Exclude:   a.excludes,
		Logger:    log,
		Progress:  opts.Progress,
	})

	if len(cfg.Vaults) > 0 {
		v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
		if err != nil {
			return fmt.Errorf("creating vault: %w", err)
		}
		a.vault = v
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	reporter := opts.Reporter
	if reporter == nil {
		reporter = fim.NewLogReporter(log)
	}
	a.service = fim.NewFIMService(store, walker, a.vault, enc, reporter, log, a.clock, fim.UUIDGenerator{})

	if a.op.Name != OpCreate {
		if err := a.checkRollback(ctx); err != nil {
			return err
		}
	}
	return nil
}

// storeMode opens the store writable only for commands that need it.
func storeMode(op *Operation) database.Mode {
	switch {
	case op.Name == OpCreate:
		return database.ModeCreate
	case op.Mutating(), op.Name == OpBaselinePush:
		return database.ModeOpen
	default:
		return database.ModeReadOnly
	}
}

// checkRollback refuses a local store older than the archived baseline,
// which is what an attacker restoring a stale copy would leave behind.
func (a *FIMApp) checkRollback(ctx context.Context) error {
	if a.vault == nil {
		return nil
	}
	remote, err := a.vault.GetBaselineVersion(a.cfg.HostID, fim.BaselineName)
	if err != nil {
		return fmt.Errorf("checking archived baseline version: %w", err)
	}
	local, err := a.service.LatestRunSeq(ctx)
	if err != nil {
		return fmt.Errorf("checking local store version: %w", err)
	}
	if remote > local {
		return fmt.Errorf("local store is behind the archived baseline (local=%d, archived=%d): pull the baseline or re-create the store", local, remote)
	}
	return nil
}

// Roots resolves raw root arguments, falling back to scan.paths.
func (a *FIMApp) Roots(raw []string) ([]string, error) {
	if len(raw) == 0 {
		raw = a.cfg.Scan.Paths
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no paths given and scan.paths is empty")
	}
	roots := make([]string, 0, len(raw))
	for _, r := range raw {
		p, err := fs.ResolveRoot(r)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", r, err)
		}
		roots = append(roots, p)
	}
	return roots, nil
}

// Excluded returns the exact paths the walk skips.
func (a *FIMApp) Excluded() []string {
	return a.excludes.Paths()
}

// StorePath returns the location of the snapshot store.
func (a *FIMApp) StorePath() string {
	return a.store.Path()
}

// track records a run around a mutating operation. Other operations run
// unrecorded.
func (a *FIMApp) track(ctx context.Context, roots []string, fn func() (fim.Counts, error)) (fim.Counts, error) {
	if !a.op.Mutating() {
		return fn()
	}
	run, err := a.service.BeginRun(ctx, a.op.Name, roots)
	if err != nil {
		return fim.Counts{}, err
	}
	a.op.run = run

	counts, err := fn()
	a.op.counts = counts
	if err != nil {
		a.op.Fail(err)
	}
	return counts, err
}

// Create walks the roots into a new snapshot store.
func (a *FIMApp) Create(ctx context.Context, rawRoots []string) (fim.Counts, error) {
	roots, err := a.Roots(rawRoots)
	if err != nil {
		return fim.Counts{}, err
	}
	return a.track(ctx, roots, func() (fim.Counts, error) {
		return a.service.Create(ctx, roots)
	})
}

// Update brings the store in line with the roots.
func (a *FIMApp) Update(ctx context.Context, rawRoots []string) (fim.Counts, error) {
	roots, err := a.Roots(rawRoots)
	if err != nil {
		return fim.Counts{}, err
	}
	return a.track(ctx, roots, func() (fim.Counts, error) {
		return a.service.Update(ctx, roots)
	})
}

// Check compares the roots against the store.
func (a *FIMApp) Check(ctx context.Context, rawRoots []string, compareTime bool) (fim.Counts, error) {
	roots, err := a.Roots(rawRoots)
	if err != nil {
		return fim.Counts{}, err
	}
	return a.service.Check(ctx, roots, compareTime)
}

// Compare checks the store against the baseline store at baselinePath.
func (a *FIMApp) Compare(ctx context.Context, baselinePath string, compareTime bool) (fim.Counts, error) {
	baseline, err := database.OpenReadOnly(baselinePath)
	if err != nil {
		return fim.Counts{}, fmt.Errorf("opening baseline store: %w", err)
	}
	defer baseline.Close()
	return a.service.Compare(ctx, baseline, compareTime)
}

func (a *FIMApp) List(ctx context.Context) (fim.Counts, error) {
	return a.service.List(ctx)
}

func (a *FIMApp) History(ctx context.Context, limit int) ([]*fim.Run, error) {
	return a.service.History(ctx, limit)
}

// Reputation looks up every stored file hash. cachePath overrides
// reputation.cache_path. Stale cache entries are purged first.
func (a *FIMApp) Reputation(ctx context.Context, cachePath string) (fim.ReputationCounts, error) {
	rc := a.cfg.Reputation
	if cachePath == "" {
		cachePath = rc.CachePath
	}
	if cachePath == "" {
		return fim.ReputationCounts{}, fmt.Errorf("no reputation cache path configured")
	}

	c, err := cache.Open(cachePath, a.logger.With(zap.String("component", "cache")))
	if err != nil {
		return fim.ReputationCounts{}, err
	}
	defer c.Close()

	purged, err := c.PurgeStale(a.clock.Now())
	if err != nil {
		return fim.ReputationCounts{}, fmt.Errorf("purging reputation cache: %w", err)
	}
	a.logger.Debug("reputation cache purged", zap.Int("removed", purged))

	client, err := reputation.New(c, reputation.Options{
		Endpoint:    rc.Endpoint,
		Timeout:     time.Duration(rc.TimeoutSeconds) * time.Second,
		Concurrency: rc.Concurrency,
		MaxAttempts: rc.MaxAttempts,
		RetryDelay:  time.Duration(rc.RetryDelayMS) * time.Millisecond,
		MemoSize:    rc.MemoSize,
		Now:         a.clock.Now,
		Logger:      a.logger.With(zap.String("component", "reputation")),
	})
	if err != nil {
		return fim.ReputationCounts{}, err
	}
	return a.service.ReputationCheck(ctx, client)
}

// PushBaseline archives the store to the vault, tagged with the latest run.
func (a *FIMApp) PushBaseline(ctx context.Context) (int64, error) {
	if a.vault == nil {
		return 0, fmt.Errorf("no vault configured")
	}
	version, err := a.service.LatestRunSeq(ctx)
	if err != nil {
		return 0, err
	}
	if version == 0 {
		return 0, fmt.Errorf("store has no recorded runs; run create first")
	}
	if err := a.service.ArchiveBaseline(ctx, a.cfg.HostID, version); err != nil {
		return 0, err
	}
	return version, nil
}

// Close finalizes the operation and closes all resources. A successful
// mutating run is archived to the vault with the run sequence as version.
func (a *FIMApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		// The caller's context may be cancelled by now.
		ctx := context.Background()
		if err := a.service.FinishRun(ctx, a.op.run, a.op.counts, a.op.err); err != nil {
			errs = append(errs, err)
		}
		if a.op.err == nil && a.vault != nil {
			if err := a.service.ArchiveBaseline(ctx, a.cfg.HostID, a.op.run.Seq); err != nil {
				errs = append(errs, fmt.Errorf("archiving baseline: %w", err))
			}
		}
	}

	errs = append(errs, a.closeResources())
	return errors.Join(errs...)
}

func (a *FIMApp) closeResources() error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing store: %w", err))
		}
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			errs = append(errs, fmt.Errorf("closing log: %w", err))
		}
	}
	return errors.Join(errs...)
}
