package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/heapload/internal/core"
	"github.com/JonMunkholm/heapload/internal/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	Register("postgres", openPostgres)
	Register("postgresql", openPostgres)
}

var heapColumns = []string{"address", "mt", "size"}

// Postgres stores checkpoints and rows in PostgreSQL. Batches are written
// with COPY inside the transaction that moves the checkpoint.
type Postgres struct {
	pool    *pgxpool.Pool
	table   pgx.Identifier
	journal pgx.Identifier
}

func openPostgres(ctx context.Context, opts Options) (Store, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logging.FromContext(ctx).Debug("connected to database",
		"database", poolConfig.ConnConfig.Database,
		"max_conns", poolConfig.MaxConns,
	)

	return NewPostgres(pool, opts.Table, opts.JournalTable), nil
}

// NewPostgres wraps an open pool. Table names may be schema qualified.
func NewPostgres(pool *pgxpool.Pool, table, journal string) *Postgres {
	if journal == "" {
		journal = DefaultJournalTable
	}
	return &Postgres{
		pool:    pool,
		table:   pgx.Identifier(strings.Split(table, ".")),
		journal: pgx.Identifier(strings.Split(journal, ".")),
	}
}

func (p *Postgres) Prepare(ctx context.Context, key string, reset bool) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	journal := p.journal.Sanitize()
	table := p.table.Sanitize()

	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id           BIGSERIAL PRIMARY KEY,
		source_key   TEXT NOT NULL UNIQUE,
		line_offset  BIGINT NOT NULL DEFAULT 1,
		byte_offset  BIGINT NOT NULL DEFAULT 0,
		percent_done DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, journal)); err != nil {
		return fmt.Errorf("create journal table: %w", err)
	}

	if reset {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
			return fmt.Errorf("drop data table: %w", err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source_key = $1`, journal), key); err != nil {
			return fmt.Errorf("reset journal: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		address BIGINT PRIMARY KEY,
		mt      BIGINT NOT NULL,
		size    BIGINT NOT NULL
	)`, table)); err != nil {
		return fmt.Errorf("create data table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, key string) (core.Checkpoint, error) {
	journal := p.journal.Sanitize()

	if _, err := p.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (source_key) VALUES ($1) ON CONFLICT (source_key) DO NOTHING`, journal), key); err != nil {
		return core.Checkpoint{}, fmt.Errorf("create checkpoint: %w", err)
	}

	var cp core.Checkpoint
	err := p.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT id, source_key, line_offset, byte_offset, percent_done FROM %s WHERE source_key = $1`, journal), key).
		Scan(&cp.ID, &cp.SourceKey, &cp.LineOffset, &cp.ByteOffset, &cp.PercentDone)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Checkpoint{}, fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	return cp, nil
}

func (p *Postgres) Commit(ctx context.Context, key string, batch *core.Batch) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	objs := batch.Objects
	_, err = tx.CopyFrom(ctx, p.table, heapColumns, pgx.CopyFromSlice(len(objs), func(i int) ([]any, error) {
		return []any{objs[i].Address, objs[i].MethodTable, objs[i].Size}, nil
	}))
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}

	tag, err := tx.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET line_offset = $2, byte_offset = $3, percent_done = $4, updated_at = now() WHERE source_key = $1`,
		p.journal.Sanitize()), key, batch.LineOffset, batch.ByteOffset, batch.PercentDone)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (p *Postgres) Complete(ctx context.Context, key string) error {
	tag, err := p.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET percent_done = 100, updated_at = now() WHERE source_key = $1`, p.journal.Sanitize()), key)
	if err != nil {
		return fmt.Errorf("complete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNoCheckpoint, key)
	}
	return nil
}

func (p *Postgres) RowCount(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.table.Sanitize())).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
