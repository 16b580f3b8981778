package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"fim-go/internal/database/migrations"
	"fim-go/internal/fim"
	"fim-go/internal/model"
)

var errReadOnly = errors.New("store is opened read-only")

// lookupChunk bounds the number of bound parameters per IN query.
const lookupChunk = 500

// SQLiteStore implements fim.SnapshotStore on a single SQLite file.
// Records are stored as their binary encoding keyed by path.
type SQLiteStore struct {
	db       *sqlx.DB
	path     string
	readOnly bool
}

// OpenOrCreate opens the store at path, creating it and applying the schema
// if needed. With overwrite set an existing file is removed first.
func OpenOrCreate(path string, overwrite bool) (*SQLiteStore, error) {
	if path != MemoryPath {
		_, err := os.Stat(path)
		switch {
		case err == nil && overwrite:
			if err := removeStoreFiles(path); err != nil {
				return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
			}
		case err == nil:
			return nil, fmt.Errorf("%s: %w", path, fim.ErrAlreadyExists)
		case !errors.Is(err, os.ErrNotExist):
			return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
		}
	}

	s, err := open(path, false)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(s.db.DB); err != nil {
		s.Close()
		return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
	}
	return s, nil
}

// Open opens an existing store for reading and writing. The schema is
// migrated forward if the binary is newer than the file.
func Open(path string) (*SQLiteStore, error) {
	if err := mustExist(path); err != nil {
		return nil, err
	}
	s, err := open(path, false)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(s.db.DB); err != nil {
		s.Close()
		return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
	}
	return s, nil
}

// OpenReadOnly opens an existing store without the ability to modify it.
// The schema must already be current.
func OpenReadOnly(path string) (*SQLiteStore, error) {
	if err := mustExist(path); err != nil {
		return nil, err
	}
	s, err := open(path, true)
	if err != nil {
		return nil, err
	}
	if err := migrations.CheckSchemaVersion(s.db.DB); err != nil {
		s.Close()
		return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
	}
	return s, nil
}

// MemoryPath opens a private in-memory store.
const MemoryPath = ":memory:"

func open(path string, readOnly bool) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn(path, readOnly))
	if err != nil {
		return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
	}
	if path == MemoryPath {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &fim.StoreError{Op: fim.StoreOpInit, Err: err}
	}
	return &SQLiteStore{db: db, path: path, readOnly: readOnly}, nil
}

// dsn builds the connection string. WAL lets readers keep a consistent
// view while a writer commits. The journal mode is persistent in the file,
// so read-only connections leave it alone.
func dsn(path string, readOnly bool) string {
	if path == MemoryPath {
		return path
	}
	if readOnly {
		return path + "?_busy_timeout=5000&_query_only=1"
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
}

func mustExist(path string) error {
	if path == MemoryPath {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, fim.ErrStoreNotFound)
		}
		return &fim.StoreError{Op: fim.StoreOpInit, Err: err}
	}
	return nil
}

func removeStoreFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Path returns the file the store was opened from.
func (s *SQLiteStore) Path() string { return s.path }

// CheckMigrations reports whether the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// Snapshot operations

const upsertSnapshot = `
	INSERT INTO snapshots (path, record) VALUES (?, ?)
	ON CONFLICT(path) DO UPDATE SET record = excluded.record`

func (s *SQLiteStore) PutBatch(ctx context.Context, entries []model.Entry) (int, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, upsertSnapshot)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range entries {
			if err := putOne(ctx, stmt, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *SQLiteStore) ReplaceBatch(ctx context.Context, entries []model.Entry) ([]*model.Record, error) {
	priors := make([]*model.Record, len(entries))
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		get, err := tx.PreparexContext(ctx, "SELECT record FROM snapshots WHERE path = ?")
		if err != nil {
			return err
		}
		defer get.Close()
		put, err := tx.PreparexContext(ctx, upsertSnapshot)
		if err != nil {
			return err
		}
		defer put.Close()

		for i, e := range entries {
			prior, err := getOne(ctx, get, e.Path)
			if err != nil {
				return err
			}
			priors[i] = prior
			if err := putOne(ctx, put, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return priors, nil
}

func (s *SQLiteStore) Get(ctx context.Context, path string) (*model.Record, error) {
	var blob []byte
	err := s.db.GetContext(ctx, &blob, "SELECT record FROM snapshots WHERE path = ?", path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, &fim.StoreError{Op: fim.StoreOpQuery, Err: err}
	}
	return decode(path, blob)
}

func (s *SQLiteStore) LookupBatch(ctx context.Context, paths []string) ([]*model.Record, error) {
	out := make([]*model.Record, len(paths))
	if len(paths) == 0 {
		return out, nil
	}

	found := make(map[string]*model.Record, len(paths))
	err := s.inReadTx(ctx, func(tx *sqlx.Tx) error {
		for start := 0; start < len(paths); start += lookupChunk {
			end := min(start+lookupChunk, len(paths))
			query, args, err := sqlx.In("SELECT path, record FROM snapshots WHERE path IN (?)", paths[start:end])
			if err != nil {
				return err
			}
			rows, err := tx.QueryxContext(ctx, tx.Rebind(query), args...)
			if err != nil {
				return err
			}
			for rows.Next() {
				var row snapshotRow
				if err := rows.StructScan(&row); err != nil {
					rows.Close()
					return err
				}
				rec, err := decode(row.Path, row.Record)
				if err != nil {
					rows.Close()
					return err
				}
				found[row.Path] = rec
			}
			if err := rows.Close(); err != nil {
				return err
			}
			if err := rows.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, p := range paths {
		out[i] = found[p]
	}
	return out, nil
}

func (s *SQLiteStore) ForEach(ctx context.Context, fn func(model.Entry) error) error {
	var fnErr error
	err := s.inReadTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := tx.QueryxContext(ctx, "SELECT path, record FROM snapshots ORDER BY path")
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var row snapshotRow
			if err := rows.StructScan(&row); err != nil {
				return err
			}
			rec, err := decode(row.Path, row.Record)
			if err != nil {
				return err
			}
			if fnErr = fn(model.Entry{Path: row.Path, Record: *rec}); fnErr != nil {
				return fnErr
			}
		}
		return rows.Err()
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func (s *SQLiteStore) RemoveBatch(ctx context.Context, paths []string) (int, error) {
	var removed int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, "DELETE FROM snapshots WHERE path = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range paths {
			res, err := stmt.ExecContext(ctx, p)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM snapshots"); err != nil {
		return 0, &fim.StoreError{Op: fim.StoreOpQuery, Err: err}
	}
	return n, nil
}

// Run tracking

func (s *SQLiteStore) CreateRun(ctx context.Context, run *fim.Run) error {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, operation, roots, status, started_at)
		VALUES (:id, :operation, :roots, :status, :started_at)`, toRunRow(run))
	if err != nil {
		return &fim.StoreError{Op: fim.StoreOpTransaction, Err: fmt.Errorf("creating run: %w", err)}
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return &fim.StoreError{Op: fim.StoreOpQuery, Err: err}
	}
	run.Seq = seq
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *fim.Run) error {
	_, err := s.db.NamedExecContext(ctx, `
		UPDATE runs SET status = :status, finished_at = :finished_at,
			processed = :processed, added = :added, changed = :changed, removed = :removed
		WHERE id = :id`, toRunRow(run))
	if err != nil {
		return &fim.StoreError{Op: fim.StoreOpTransaction, Err: fmt.Errorf("finishing run: %w", err)}
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*fim.Run, error) {
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM runs ORDER BY seq DESC LIMIT ?", limit)
	if err != nil {
		return nil, &fim.StoreError{Op: fim.StoreOpQuery, Err: fmt.Errorf("listing runs: %w", err)}
	}
	runs := make([]*fim.Run, len(rows))
	for i := range rows {
		runs[i] = rows[i].toRun()
	}
	return runs, nil
}

func (s *SQLiteStore) MaxRunSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.GetContext(ctx, &seq, "SELECT COALESCE(MAX(seq), 0) FROM runs"); err != nil {
		return 0, &fim.StoreError{Op: fim.StoreOpQuery, Err: err}
	}
	return seq, nil
}

// BackupTo creates a complete copy of the store at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// inTx runs fn in a write transaction. Any failure rolls back the whole
// transaction.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if s.readOnly {
		return &fim.StoreError{Op: fim.StoreOpTransaction, Err: errReadOnly}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &fim.StoreError{Op: fim.StoreOpTransaction, Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return asStoreError(fim.StoreOpTransaction, err)
	}
	if err := tx.Commit(); err != nil {
		return &fim.StoreError{Op: fim.StoreOpCommit, Err: err}
	}
	return nil
}

func (s *SQLiteStore) inReadTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return &fim.StoreError{Op: fim.StoreOpTransaction, Err: err}
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return asStoreError(fim.StoreOpQuery, err)
	}
	return nil
}

func asStoreError(op fim.StoreOp, err error) error {
	var se *fim.StoreError
	var ee *model.EncodingError
	if errors.As(err, &se) || errors.As(err, &ee) {
		return err
	}
	return &fim.StoreError{Op: op, Err: err}
}

func putOne(ctx context.Context, stmt *sqlx.Stmt, e model.Entry) error {
	blob, err := e.Record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Path, err)
	}
	_, err = stmt.ExecContext(ctx, e.Path, blob)
	return err
}

func getOne(ctx context.Context, stmt *sqlx.Stmt, path string) (*model.Record, error) {
	var blob []byte
	if err := stmt.GetContext(ctx, &blob, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return decode(path, blob)
}

func decode(path string, blob []byte) (*model.Record, error) {
	rec, err := model.UnmarshalRecord(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &rec, nil
}

type snapshotRow struct {
	Path   string `db:"path"`
	Record []byte `db:"record"`
}

type runRow struct {
	Seq        int64        `db:"seq"`
	ID         string       `db:"id"`
	Operation  string       `db:"operation"`
	Roots      string       `db:"roots"`
	Status     string       `db:"status"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	Processed  int64        `db:"processed"`
	Added      int64        `db:"added"`
	Changed    int64        `db:"changed"`
	Removed    int64        `db:"removed"`
}

func toRunRow(r *fim.Run) runRow {
	return runRow{
		Seq:        r.Seq,
		ID:         r.ID,
		Operation:  r.Operation,
		Roots:      r.Roots,
		Status:     r.Status,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: sql.NullTime{Time: r.FinishedAt.UTC(), Valid: !r.FinishedAt.IsZero()},
		Processed:  r.Counts.Processed,
		Added:      r.Counts.Added,
		Changed:    r.Counts.Changed,
		Removed:    r.Counts.Removed,
	}
}

func (r runRow) toRun() *fim.Run {
	run := &fim.Run{
		Seq:       r.Seq,
		ID:        r.ID,
		Operation: r.Operation,
		Roots:     r.Roots,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Counts: fim.Counts{
			Processed: r.Processed,
			Added:     r.Added,
			Changed:   r.Changed,
			Removed:   r.Removed,
		},
	}
	if r.FinishedAt.Valid {
		run.FinishedAt = r.FinishedAt.Time
	}
	return run
}

// Compile-time check that SQLiteStore implements fim.SnapshotStore.
var _ fim.SnapshotStore = (*SQLiteStore)(nil)
