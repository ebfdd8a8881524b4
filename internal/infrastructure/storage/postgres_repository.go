package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
)

// PostgresRunStore persists run snapshots into Postgres. The store is
// append-only audit history; the decision logic never reads it.
type PostgresRunStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.RunStore = (*PostgresRunStore)(nil)

// NewPostgresRunStore wires a sql.DB implementation.
func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// RecordRun appends one finished run.
func (r *PostgresRunStore) RecordRun(ctx context.Context, rec domain.RunRecord) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.builder.
		Insert("check_runs").
		Columns("run_id", "tag", "needs_build", "reason", "registries", "started_at", "finished_at").
		Values(rec.ID, rec.Tag, rec.NeedsBuild, rec.Reason, pq.StringArray(rec.Registries), rec.StartedAt, rec.FinishedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// RecentRuns returns the newest runs, most recent first.
func (r *PostgresRunStore) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if r.db == nil || limit <= 0 {
		return nil, nil
	}

	query, args, err := r.builder.
		Select("run_id", "tag", "needs_build", "reason", "registries", "started_at", "finished_at").
		From("check_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var records []domain.RunRecord
	for rows.Next() {
		var rec domain.RunRecord
		var registries pq.StringArray
		if err := rows.Scan(&rec.ID, &rec.Tag, &rec.NeedsBuild, &rec.Reason, &registries, &rec.StartedAt, &rec.FinishedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Registries = registries
		records = append(records, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return records, nil
}

// EnsureSchema creates the history table when missing.
func (r *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	const ddl = `CREATE TABLE IF NOT EXISTS check_runs (
        run_id      TEXT PRIMARY KEY,
        tag         TEXT NOT NULL,
        needs_build BOOLEAN NOT NULL,
        reason      TEXT NOT NULL DEFAULT '',
        registries  TEXT[] NOT NULL DEFAULT '{}',
        started_at  TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL
    )`

	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
