/*
Copyright (c) 2026 kais-io
SPDX-License-Identifier: MIT
*/

// Package store implements the relational event store: the cell_events
// table the event consumer writes to and its query surface. The concrete
// driver is abstracted behind the EventStore interface; the only
// concrete implementation here is backed by pgx/v5.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

//go:embed migrations
var migrationsFS embed.FS

// Event is one row of cell_events, as read back by query methods.
type Event struct {
	ID        int64
	CellName  string
	Namespace string
	EventType string
	Payload   []byte // raw JSON
	CreatedAt time.Time
}

// UsageSummary aggregates response-event usage for one cell.
type UsageSummary struct {
	CellName    string
	TotalCost   float64
	TotalTokens int64
}

// EventStore is the DbClient-backed persistence seam the Event Consumer
// and query callers depend on.
type EventStore interface {
	InsertEvent(ctx context.Context, cellName, namespace, eventType string, payload []byte) error
	RecentEvents(ctx context.Context, cellName string, limit int) ([]Event, error)
	UsageSummary(ctx context.Context, cellName string) (UsageSummary, error)
	Close()
}

// PgxStore is the pgx/v5-backed EventStore.
type PgxStore struct {
	pool *pgxpool.Pool
}

// Connect opens a connection pool against dsn and returns a PgxStore.
// Migrations are not run here; call Migrate first, or ensure the schema
// already exists.
func Connect(ctx context.Context, dsn string) (*PgxStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &PgxStore{pool: pool}, nil
}

// Migrate applies every pending embedded migration against dsn.
func Migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("store: open: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "cell_events", driver)
	if err != nil {
		return fmt.Errorf("store: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return sourceDriver.Close()
}

// InsertEvent persists one cell_events row.
func (s *PgxStore) InsertEvent(ctx context.Context, cellName, namespace, eventType string, payload []byte) error {
	if namespace == "" {
		namespace = "default"
	}
	const q = `INSERT INTO cell_events (cell_name, namespace, event_type, payload) VALUES ($1,$2,$3,$4)`
	_, err := s.pool.Exec(ctx, q, cellName, namespace, eventType, payload)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent limit events for cellName, newest
// first.
func (s *PgxStore) RecentEvents(ctx context.Context, cellName string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, cell_name, namespace, event_type, payload, created_at
		FROM cell_events WHERE cell_name=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, cellName, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CellName, &e.Namespace, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UsageSummary sums response-event usage.cost and usage.totalTokens for
// cellName.
func (s *PgxStore) UsageSummary(ctx context.Context, cellName string) (UsageSummary, error) {
	const q = `SELECT
		COALESCE(SUM((payload->'usage'->>'cost')::numeric), 0),
		COALESCE(SUM((payload->'usage'->>'totalTokens')::numeric), 0)
		FROM cell_events WHERE cell_name=$1 AND event_type='response'`
	var cost float64
	var tokens int64
	if err := s.pool.QueryRow(ctx, q, cellName).Scan(&cost, &tokens); err != nil {
		return UsageSummary{}, fmt.Errorf("store: usage summary: %w", err)
	}
	return UsageSummary{CellName: cellName, TotalCost: cost, TotalTokens: tokens}, nil
}

// Close releases the underlying connection pool.
func (s *PgxStore) Close() {
	s.pool.Close()
}
