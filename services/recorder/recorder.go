// Package recorder keeps an append-only SQLite archive of scan summaries
// and emitted notifications. The engine never reads it back; it exists for
// offline reporting, so failures here degrade to log warnings.
package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eonurk/finance-bro/models"
	"github.com/eonurk/finance-bro/services/scanner"
)

// Recorder writes scan results to a local SQLite database.
type Recorder struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates the database file (and its directory) if needed and
// prepares the schema.
func Open(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping recorder database: %w", err)
	}

	r := &Recorder{db: db}
	if err := r.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Recorder) createTables() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	scansTable := `
		CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NOT NULL,
			symbols INTEGER,
			notifications INTEGER,
			fetched BOOLEAN,
			error VARCHAR
		)
	`
	if _, err := r.db.Exec(scansTable); err != nil {
		return fmt.Errorf("failed to create scans table: %w", err)
	}

	notificationsTable := `
		CREATE TABLE IF NOT EXISTS notifications (
			id VARCHAR PRIMARY KEY,
			scan_id INTEGER NOT NULL,
			symbol VARCHAR NOT NULL,
			indicator VARCHAR NOT NULL,
			kind VARCHAR NOT NULL,
			price DOUBLE,
			event_time TIMESTAMP NOT NULL,
			is_new BOOLEAN,
			FOREIGN KEY (scan_id) REFERENCES scans(id)
		)
	`
	if _, err := r.db.Exec(notificationsTable); err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}
	return nil
}

// ArchiveScan stores one scan summary with its notification records in a
// single transaction.
func (r *Recorder) ArchiveScan(sum scanner.Summary, records []models.NotificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := tx.Exec(
		`INSERT INTO scans (started_at, completed_at, symbols, notifications, fetched, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sum.StartedAt, sum.CompletedAt, sum.Symbols, sum.Notifications, sum.Fetched, sum.Err,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	scanID, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to read scan id: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO notifications (id, scan_id, symbol, indicator, kind, price, event_time, is_new)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare notification insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(
			rec.ID, scanID, rec.Symbol, string(rec.Indicator), string(rec.Kind),
			rec.Price, rec.Timestamp, rec.IsNew,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert notification %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan archive: %w", err)
	}
	return nil
}
