// Package store persists timeline events in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/phillip-england/navigator/internal/timeline"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DriverFor picks the driver from the DSN: postgres URLs or key=value
// connection strings use lib/pq, anything else is a SQLite path.
func DriverFor(dsn string) (string, Dialect) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres", Postgres
	}
	return "sqlite", SQLite
}

type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is required")
	}
	driver, dialect := DriverFor(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == SQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const createEvents = `CREATE TABLE IF NOT EXISTS timeline_events (
	position INTEGER PRIMARY KEY,
	task TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL
)`

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createEvents); err != nil {
		return fmt.Errorf("migrate timeline_events: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM timeline_events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Seed stores events only when the table is empty. It reports whether it
// wrote anything.
func (s *Store) Seed(ctx context.Context, events []timeline.Event) (bool, error) {
	n, err := s.CountEvents(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	return true, s.ReplaceEvents(ctx, events)
}

func (s *Store) ListEvents(ctx context.Context) ([]timeline.Event, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT task, start_date, end_date FROM timeline_events ORDER BY position")
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []timeline.Event{}
	for rows.Next() {
		var ev timeline.Event
		if err := rows.Scan(&ev.Task, &ev.Start, &ev.End); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// ReplaceEvents swaps the whole timeline in one transaction.
func (s *Store) ReplaceEvents(ctx context.Context, events []timeline.Event) (err error) {
	for i, ev := range events {
		if verr := ev.Validate(); verr != nil {
			return fmt.Errorf("event %d: %w", i+1, verr)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM timeline_events"); err != nil {
		return fmt.Errorf("clear events: %w", err)
	}
	insert := s.rebind("INSERT INTO timeline_events (position, task, start_date, end_date) VALUES (?, ?, ?, ?)")
	for i, ev := range events {
		if _, err = tx.ExecContext(ctx, insert, i, ev.Task, ev.Start, ev.End); err != nil {
			return fmt.Errorf("insert event %d: %w", i+1, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
