// Package registry keeps a sqlite log of bundle lifecycle events so runs can
// be inspected after the harness exits.
package registry

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tomyedwab/bundlelauncher/launcher/bundle"
)

// BundleEvent represents a lifecycle event row in the database
type BundleEvent struct {
	ID                 string `db:"id"`
	BundleID           string `db:"bundle_id"`
	EventType          string `db:"event_type"`
	State              string `db:"state"`
	Port               int    `db:"port"`
	CommandMonitorPort int    `db:"command_monitor_port"`
	KeepAlivePort      int    `db:"keep_alive_port"`
	PID                int    `db:"pid"`
	Message            string `db:"message"`
	Timestamp          int64  `db:"timestamp"` // Unix milliseconds
}

// Time returns the event timestamp.
func (e BundleEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Registry records bundle lifecycle events
type Registry struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path, creating it and its parent
// directory when needed.
func Open(path string) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	r, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// New creates a registry on an open database
func New(db *sqlx.DB) (*Registry, error) {
	if err := DBInit(db); err != nil {
		return nil, err
	}
	return &Registry{
		db: db,
	}, nil
}

// DBInit initializes the bundle events database table
func DBInit(db *sqlx.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS bundle_events (
		id TEXT PRIMARY KEY,
		bundle_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		state TEXT NOT NULL,
		port INTEGER NOT NULL DEFAULT 0,
		command_monitor_port INTEGER NOT NULL DEFAULT 0,
		keep_alive_port INTEGER NOT NULL DEFAULT 0,
		pid INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL
	)
	`)
	if err != nil {
		return err
	}

	// Create indexes for common queries
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_bundle_events_bundle_id ON bundle_events(bundle_id)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_bundle_events_event_type ON bundle_events(event_type)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_bundle_events_timestamp ON bundle_events(timestamp)`)
	return err
}

// Record inserts a lifecycle event. It implements bundle.Recorder.
func (r *Registry) Record(e bundle.Event) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.Exec(`
		INSERT INTO bundle_events (
			id, bundle_id, event_type, state, port,
			command_monitor_port, keep_alive_port, pid, message, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New().String(),
		e.BundleID,
		string(e.Type),
		e.State.String(),
		e.Port,
		e.CommandMonitorPort,
		e.KeepAlivePort,
		e.PID,
		e.Message,
		ts.UTC().UnixMilli(),
	)
	return err
}

// EventsByBundle retrieves events for a bundle, newest first
func (r *Registry) EventsByBundle(bundleID string, limit int) ([]BundleEvent, error) {
	var events []BundleEvent
	err := r.db.Select(&events,
		"SELECT * FROM bundle_events WHERE bundle_id = $1 ORDER BY timestamp DESC, rowid DESC LIMIT $2",
		bundleID, limit)
	return events, err
}

// RecentEvents retrieves the most recent events across all bundles
func (r *Registry) RecentEvents(limit int) ([]BundleEvent, error) {
	var events []BundleEvent
	err := r.db.Select(&events,
		"SELECT * FROM bundle_events ORDER BY timestamp DESC, rowid DESC LIMIT $1",
		limit)
	return events, err
}

// DeleteOldEvents deletes events older than the specified duration
func (r *Registry) DeleteOldEvents(olderThan time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-olderThan).UnixMilli()
	result, err := r.db.Exec("DELETE FROM bundle_events WHERE timestamp < $1", threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the underlying database
func (r *Registry) Close() error {
	return r.db.Close()
}
