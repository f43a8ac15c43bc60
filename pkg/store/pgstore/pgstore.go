// Package pgstore persists projection records and snapshots in
// Postgres. It is the durable home for manager output between worker
// runs; the event log itself lives in JetStream.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/eventkit/pkg/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS projections (
	name          TEXT PRIMARY KEY,
	version       INTEGER     NOT NULL,
	state         TEXT        NOT NULL,
	last_event_id TEXT        NOT NULL DEFAULT '',
	last_event_ts TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS snapshots (
	aggregate_id   TEXT PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	version        BIGINT      NOT NULL,
	state          TEXT        NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// ProjectionStore implements store.ProjectionStore with one row per
// projection, upserted by name.
type ProjectionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewProjectionStore(pool *pgxpool.Pool, logger *slog.Logger) *ProjectionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectionStore{pool: pool, logger: logger}
}

// Save upserts all records in one transaction, so a crash cannot leave a
// half-written projection set.
func (s *ProjectionStore) Save(ctx context.Context, records []store.ProjectionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: save projections: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO projections (name, version, state, last_event_id, last_event_ts, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (name) DO UPDATE SET
				version = EXCLUDED.version,
				state = EXCLUDED.state,
				last_event_id = EXCLUDED.last_event_id,
				last_event_ts = EXCLUDED.last_event_ts,
				updated_at = now()`,
			rec.Name, rec.Version, rec.State, rec.LastEventID, rec.LastEventTimestamp.UTC())
		if err != nil {
			return fmt.Errorf("pgstore: save projection %q: %w", rec.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgstore: save projections: %w", err)
	}
	s.logger.Debug("projections saved", "count", len(records))
	return nil
}

// Load returns every persisted projection record, ordered by name.
func (s *ProjectionStore) Load(ctx context.Context) ([]store.ProjectionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, version, state, last_event_id, last_event_ts
		FROM projections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("pgstore: load projections: %w", err)
	}
	defer rows.Close()

	var records []store.ProjectionRecord
	for rows.Next() {
		var rec store.ProjectionRecord
		if err := rows.Scan(&rec.Name, &rec.Version, &rec.State, &rec.LastEventID, &rec.LastEventTimestamp); err != nil {
			return nil, fmt.Errorf("pgstore: load projections: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgstore: load projections: %w", err)
	}
	return records, nil
}

// SnapshotStore implements store.SnapshotStore with one row per
// aggregate, upserted by id. Later snapshots supersede earlier ones.
type SnapshotStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewSnapshotStore(pool *pgxpool.Pool, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{pool: pool, logger: logger}
}

func (s *SnapshotStore) Save(ctx context.Context, snap *store.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (aggregate_id) DO UPDATE SET
			aggregate_type = EXCLUDED.aggregate_type,
			version = EXCLUDED.version,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at`,
		snap.AggregateID, snap.AggregateType, snap.Version, string(snap.State), snap.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("pgstore: save snapshot %q: %w", snap.AggregateID, err)
	}
	s.logger.Debug("snapshot saved", "aggregate_id", snap.AggregateID, "version", snap.Version)
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	var snap store.Snapshot
	var state string
	err := s.pool.QueryRow(ctx, `
		SELECT aggregate_id, aggregate_type, version, state, created_at
		FROM snapshots WHERE aggregate_id = $1`, aggregateID).
		Scan(&snap.AggregateID, &snap.AggregateType, &snap.Version, &state, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNoSnapshot
		}
		return nil, fmt.Errorf("pgstore: load snapshot %q: %w", aggregateID, err)
	}
	snap.State = []byte(state)
	return &snap, nil
}
