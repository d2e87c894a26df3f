package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/JonMunkholm/heapload/internal/core"
	"github.com/JonMunkholm/heapload/internal/logging"

	_ "modernc.org/sqlite"
)

func init() {
	Register("sqlite", openSQLite)
}

// sqliteRowsPerInsert bounds the rows of one multi-row INSERT, keeping the
// statement well below the bound parameter limit.
const sqliteRowsPerInsert = 300

// SQLite stores checkpoints and rows in an SQLite database. The handle is
// limited to one connection; writes are serialised by the single ingest
// run anyway and ":memory:" databases exist per connection.
type SQLite struct {
	db      *sql.DB
	table   string
	journal string
}

// SQLitePath returns the file path encoded in a sqlite URL:
// "sqlite:///abs/heap.db", "sqlite://rel/heap.db" or "sqlite::memory:".
func SQLitePath(url string) string {
	if path, ok := strings.CutPrefix(url, "sqlite://"); ok {
		return path
	}
	path, _ := strings.CutPrefix(url, "sqlite:")
	return path
}

func openSQLite(ctx context.Context, opts Options) (Store, error) {
	path := SQLitePath(opts.URL)
	if path == "" {
		return nil, fmt.Errorf("sqlite URL %q has no path", opts.URL)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	logging.FromContext(ctx).Debug("opened sqlite database", "path", path)

	return NewSQLite(db, opts.Table, opts.JournalTable), nil
}

// NewSQLite wraps an open database handle.
func NewSQLite(db *sql.DB, table, journal string) *SQLite {
	if journal == "" {
		journal = DefaultJournalTable
	}
	return &SQLite{db: db, table: quoteIdentifier(table), journal: quoteIdentifier(journal)}
}

func (s *SQLite) Prepare(ctx context.Context, key string, reset bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		source_key   TEXT NOT NULL UNIQUE,
		line_offset  INTEGER NOT NULL DEFAULT 1,
		byte_offset  INTEGER NOT NULL DEFAULT 0,
		percent_done REAL NOT NULL DEFAULT 0,
		updated_at   TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, s.journal)); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}

	if reset {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
			return fmt.Errorf("drop data table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source_key = ?`, s.journal), key); err != nil {
			return fmt.Errorf("reset journal: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		address INTEGER PRIMARY KEY,
		mt      INTEGER NOT NULL,
		size    INTEGER NOT NULL
	)`, s.table)); err != nil {
		return fmt.Errorf("create data table: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, key string) (core.Checkpoint, error) {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (source_key) VALUES (?)`, s.journal), key); err != nil {
		return core.Checkpoint{}, fmt.Errorf("create checkpoint: %w", err)
	}

	var cp core.Checkpoint
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, source_key, line_offset, byte_offset, percent_done FROM %s WHERE source_key = ?`, s.journal), key).
		Scan(&cp.ID, &cp.SourceKey, &cp.LineOffset, &cp.ByteOffset, &cp.PercentDone)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Checkpoint{}, fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, nil
}

func (s *SQLite) Commit(ctx context.Context, key string, batch *core.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for objs := range slices.Chunk(batch.Objects, sqliteRowsPerInsert) {
		query, args := s.insertQuery(objs)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET line_offset = ?, byte_offset = ?, percent_done = ?, updated_at = CURRENT_TIMESTAMP WHERE source_key = ?`,
		s.journal), batch.LineOffset, batch.ByteOffset, batch.PercentDone, key)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// insertQuery builds one multi-row INSERT for objs.
func (s *SQLite) insertQuery(objs []core.HeapObject) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (address, mt, size) VALUES ", s.table)
	args := make([]any, 0, 3*len(objs))
	for i, o := range objs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?)")
		args = append(args, o.Address, o.MethodTable, o.Size)
	}
	return b.String(), args
}

func (s *SQLite) Complete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET percent_done = 100, updated_at = CURRENT_TIMESTAMP WHERE source_key = ?`, s.journal), key)
	if err != nil {
		return fmt.Errorf("complete checkpoint: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}
	return nil
}

func (s *SQLite) RowCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
