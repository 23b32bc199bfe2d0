package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andresmejia3/lookout/internal/types"
)

// Store persists fired alerts in PostgreSQL. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// IdentityCount summarizes the alert history of one identity.
type IdentityCount struct {
	Identity  string
	Count     int
	LastFired time.Time
}

// New connects to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// initSchema creates the alert table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS alert_events (
			id UUID PRIMARY KEY,
			identity TEXT NOT NULL,
			label TEXT NOT NULL,
			similarity DOUBLE PRECISION NOT NULL,
			box_x1 INT NOT NULL,
			box_y1 INT NOT NULL,
			box_x2 INT NOT NULL,
			box_y2 INT NOT NULL,
			fired_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS alert_events_fired_at_idx ON alert_events (fired_at DESC);
		CREATE INDEX IF NOT EXISTS alert_events_identity_idx ON alert_events (identity);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close terminates the database connections.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Name() string { return "postgres" }

// Send stores an alert. It makes the store usable as an alert sink.
func (s *Store) Send(ctx context.Context, ev types.AlertEvent) error {
	return s.InsertAlert(ctx, ev)
}

// InsertAlert saves one alert event. Re-inserting the same ID is a no-op.
func (s *Store) InsertAlert(ctx context.Context, ev types.AlertEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_events (id, identity, label, similarity, box_x1, box_y1, box_x2, box_y2, fired_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID.String(), ev.Identity, ev.Label, ev.Similarity,
		ev.Box.X1, ev.Box.Y1, ev.Box.X2, ev.Box.Y2, ev.FiredAt)
	return err
}

// Recent returns up to limit alerts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.AlertEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, identity, label, similarity, box_x1, box_y1, box_x2, box_y2, fired_at
		FROM alert_events
		ORDER BY fired_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.AlertEvent, error) {
		var (
			ev types.AlertEvent
			id string
		)
		if err := row.Scan(&id, &ev.Identity, &ev.Label, &ev.Similarity,
			&ev.Box.X1, &ev.Box.Y1, &ev.Box.X2, &ev.Box.Y2, &ev.FiredAt); err != nil {
			return ev, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return ev, fmt.Errorf("bad alert id %q: %w", id, err)
		}
		ev.ID = parsed
		return ev, nil
	})
}

// CountByIdentity summarizes the history per identity, most alerted first.
func (s *Store) CountByIdentity(ctx context.Context) ([]IdentityCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT identity, COUNT(*), MAX(fired_at)
		FROM alert_events
		GROUP BY identity
		ORDER BY COUNT(*) DESC, identity ASC
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (IdentityCount, error) {
		var c IdentityCount
		err := row.Scan(&c.Identity, &c.Count, &c.LastFired)
		return c, err
	})
}

// Reset drops the alert table to clear the database state.
// The next New call recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DROP TABLE IF EXISTS alert_events CASCADE;`)
	return err
}
