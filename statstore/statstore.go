// Package statstore keeps a SQLite history of finished program runs. A
// Store is a vm.RunRecorder: the CPU hands it one row per program context
// that ends.
package statstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/kosvm/statstore/migrations"
	"github.com/chazu/kosvm/vm"
)

var log = commonlog.GetLogger("kosvm.statstore")

// recordTimeout bounds a RecordRun issued from the tick goroutine.
const recordTimeout = 2 * time.Second

// Store persists run statistics in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Summary aggregates the whole history.
type Summary struct {
	Runs         int
	Aborted      int
	Instructions uint64
	Duration     time.Duration
}

// Open opens the run history at path, creating it if needed, and applies
// the embedded schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Debugf("opened run history %s", path)
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordRun implements vm.RunRecorder.
func (s *Store) RecordRun(stats vm.RunStatistics) error {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return s.RecordRunContext(ctx, stats)
}

// RecordRunContext inserts one run. Recording the same run id twice keeps
// the later row.
func (s *Store) RecordRunContext(ctx context.Context, stats vm.RunStatistics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(stats.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	started := stats.Started
	if started.IsZero() {
		started = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO runs (
		   run_id,
		   context_id,
		   started_at,
		   duration_us,
		   instructions,
		   aborted
		 ) VALUES (?, ?, ?, ?, ?, ?)`,
		stats.RunID,
		stats.ContextID,
		toMillis(started),
		stats.Duration.Microseconds(),
		int64(stats.Instructions),
		boolToInt(stats.Aborted),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", stats.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]vm.RunStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT run_id, context_id, started_at, duration_us, instructions, aborted
		   FROM runs
		  ORDER BY started_at DESC, rowid DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []vm.RunStatistics
	for rows.Next() {
		var (
			r            vm.RunStatistics
			startedAt    int64
			durationUs   int64
			instructions int64
			aborted      int64
		)
		if err := rows.Scan(&r.RunID, &r.ContextID, &startedAt, &durationUs, &instructions, &aborted); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = fromMillis(startedAt)
		r.Duration = time.Duration(durationUs) * time.Microsecond
		r.Instructions = uint64(instructions)
		r.Aborted = aborted != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Summarize aggregates every recorded run.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var (
		sum          Summary
		instructions int64
		durationUs   int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(aborted), 0),
		        COALESCE(SUM(instructions), 0),
		        COALESCE(SUM(duration_us), 0)
		   FROM runs`,
	).Scan(&sum.Runs, &sum.Aborted, &instructions, &durationUs)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize runs: %w", err)
	}
	sum.Instructions = uint64(instructions)
	sum.Duration = time.Duration(durationUs) * time.Microsecond
	return sum, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// applyMigrations runs each embedded .sql file once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		var applied int
		if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, file).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, file, toMillis(time.Now())); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}
