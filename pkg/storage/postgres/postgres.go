// Package postgres provides a PostgreSQL usage ledger built on pgx/v5
// connection pooling. The schema is applied from embedded migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/copilot-bridge/pkg/storage"
)

// uniqueViolation is the PostgreSQL SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

// dbPool is the subset of *pgxpool.Pool the ledger uses.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Ledger is a PostgreSQL-backed storage.Ledger.
type Ledger struct {
	pool dbPool
}

var _ storage.Ledger = (*Ledger)(nil)

// New connects to PostgreSQL. If MigrateOnStart is true, schema
// migrations are applied before returning.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	l := &Ledger{pool: p}

	if cfg.MigrateOnStart {
		if err := l.migrate(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return l, nil
}

// Record inserts r.
func (l *Ledger) Record(ctx context.Context, r storage.Record) error {
	if r.ID == "" {
		return storage.ErrInvalidRecord
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO usage_records (
			id, request_id, subject, model, stream, status, chunks,
			prompt_tokens, completion_tokens, total_tokens,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		r.ID, r.RequestID, r.Subject, r.Model, r.Stream, r.Status, r.Chunks,
		r.PromptTokens, r.CompletionTokens, r.TotalTokens,
		r.DurationMS, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

// Summary aggregates records created at or after since.
func (l *Ledger) Summary(ctx context.Context, since time.Time, limit int) (*storage.Summary, error) {
	sum := &storage.Summary{Since: since, Recent: []storage.Record{}}

	err := l.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE stream),
		       count(*) FILTER (WHERE status >= 400),
		       coalesce(sum(prompt_tokens), 0),
		       coalesce(sum(completion_tokens), 0),
		       coalesce(sum(total_tokens), 0)
		FROM usage_records
		WHERE created_at >= $1
	`, since).Scan(
		&sum.Requests, &sum.Streams, &sum.Failures,
		&sum.PromptTokens, &sum.CompletionTokens, &sum.TotalTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating usage: %w", err)
	}

	if limit <= 0 {
		return sum, nil
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, request_id, subject, model, stream, status, chunks,
		       prompt_tokens, completion_tokens, total_tokens,
		       duration_ms, created_at
		FROM usage_records
		WHERE created_at >= $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}

	recent, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Record, error) {
		var r storage.Record
		err := row.Scan(
			&r.ID, &r.RequestID, &r.Subject, &r.Model, &r.Stream, &r.Status, &r.Chunks,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&r.DurationMS, &r.CreatedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning usage records: %w", err)
	}
	sum.Recent = append(sum.Recent, recent...)

	return sum, nil
}

// HealthCheck verifies the database connection.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Close releases the connection pool.
func (l *Ledger) Close() error {
	l.pool.Close()
	return nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
