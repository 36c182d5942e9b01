// Package heartbeatlog persists the coordinator's periodic heartbeat
// metrics to a local SQLite database. It never stores fused track
// state, only the aggregate counters a coordinator emits on each
// heartbeat, so tracks never survive a process restart through this store.
package heartbeatlog

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a thin wrapper over a migrated SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates its schema to the latest version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("heartbeatlog: open %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("heartbeatlog: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("heartbeatlog: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("heartbeatlog: migration init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("heartbeatlog: migration up: %w", err)
	}
	return nil
}

// Record appends one heartbeat sample.
func (s *Store) Record(observedAt time.Time, trackCount, queueDepth int, lastLatencyMs float64) error {
	_, err := s.db.Exec(
		`INSERT INTO heartbeat (observed_at_unix_ms, track_count, queue_depth, last_latency_ms) VALUES (?, ?, ?, ?)`,
		observedAt.UnixMilli(), trackCount, queueDepth, lastLatencyMs,
	)
	if err != nil {
		return fmt.Errorf("heartbeatlog: record: %w", err)
	}
	return nil
}

// Recent returns the last n heartbeat samples, most recent first.
func (s *Store) Recent(n int) ([]Sample, error) {
	rows, err := s.db.Query(
		`SELECT observed_at_unix_ms, track_count, queue_depth, last_latency_ms
		 FROM heartbeat ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("heartbeatlog: recent: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var ms int64
		var sample Sample
		if err := rows.Scan(&ms, &sample.TrackCount, &sample.QueueDepth, &sample.LastLatencyMs); err != nil {
			return nil, fmt.Errorf("heartbeatlog: scan: %w", err)
		}
		sample.ObservedAt = time.UnixMilli(ms)
		out = append(out, sample)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Sample is one persisted heartbeat row.
type Sample struct {
	ObservedAt    time.Time
	TrackCount    int
	QueueDepth    int
	LastLatencyMs float64
}
