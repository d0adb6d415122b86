package session

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/srg/senselog/internal/protocol"
)

// SQLiteSink persists a session snapshot to a SQLite database file.
// The readings table mirrors the protocol schema plus the device
// address, one row per reading, inserted in arrival order.
type SQLiteSink struct {
	Path string
}

const createReadingsSQL = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	timestamp_local TEXT NOT NULL,
	ax REAL NOT NULL,
	ay REAL NOT NULL,
	az REAL NOT NULL
)`

const insertReadingSQL = `
INSERT INTO readings (device, timestamp, timestamp_local, ax, ay, az)
VALUES (?, ?, ?, ?, ?, ?)`

// Write persists the session snapshot to q.Path, creating the database
// and schema as needed. All rows go in a single transaction so a failed
// write never leaves a partial session behind.
func (q *SQLiteSink) Write(s *Session) error {
	db, err := sql.Open("sqlite3", q.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", q.Path, err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec(createReadingsSQL); err != nil {
		return fmt.Errorf("create readings table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(strings.TrimSpace(insertReadingSQL))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}

	device := s.DeviceAddress()
	for _, r := range s.Snapshot() {
		_, err := stmt.Exec(
			device,
			int64(r.SensorMillis),
			r.Received.Format(time.RFC3339Nano),
			r.Ax, r.Ay, r.Az,
		)
		if err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("insert reading: %w", err)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("close insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// readingColumns are the table columns matching the protocol schema.
// Kept as an assertion target so schema drift shows up in tests.
var readingColumns = append([]string{"device"}, protocol.ColumnNames()...)
