package callstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check: Postgres must implement Store.
var _ Store = (*Postgres)(nil)

// schema is applied on startup. IF NOT EXISTS keeps it idempotent across
// restarts; there is no migration history for a single table.
const schema = `
CREATE TABLE IF NOT EXISTS call_records (
    id              BIGSERIAL PRIMARY KEY,
    call_id         TEXT NOT NULL,
    carrier_call_id TEXT NOT NULL DEFAULT '',
    peer_number     TEXT NOT NULL DEFAULT '',
    direction       TEXT NOT NULL,
    status          TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    ended_at        TIMESTAMPTZ NOT NULL,
    commands        TEXT[] NOT NULL DEFAULT '{}',
    summary         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS call_records_started_at_idx ON call_records (started_at DESC);
`

// Postgres persists call records in a single call_records table.
// All methods are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn and bootstraps the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("callstore: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("callstore: bootstrap schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Record implements [Store].
func (p *Postgres) Record(ctx context.Context, rec CallRecord) error {
	const q = `
		INSERT INTO call_records
		    (call_id, carrier_call_id, peer_number, direction, status, started_at, ended_at, commands, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := p.pool.Exec(ctx, q,
		rec.CallID,
		rec.CarrierCallID,
		rec.PeerNumber,
		rec.Direction,
		rec.Status,
		rec.StartedAt,
		rec.EndedAt,
		rec.Commands,
		rec.Summary,
	)
	if err != nil {
		return fmt.Errorf("callstore: record call %s: %w", rec.CallID, err)
	}
	return nil
}

// Recent implements [Store].
func (p *Postgres) Recent(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT call_id, carrier_call_id, peer_number, direction, status, started_at, ended_at, commands, summary
		FROM   call_records
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := p.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("callstore: list recent: %w", err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CallRecord, error) {
		var rec CallRecord
		err := row.Scan(
			&rec.CallID,
			&rec.CarrierCallID,
			&rec.PeerNumber,
			&rec.Direction,
			&rec.Status,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.Commands,
			&rec.Summary,
		)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("callstore: scan rows: %w", err)
	}
	if records == nil {
		records = []CallRecord{}
	}
	return records, nil
}

// Ping verifies database connectivity, for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
