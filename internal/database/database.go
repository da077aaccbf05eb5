package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/vincentbai/browsetrace-vitals/internal/models"
	_ "modernc.org/sqlite" // CGO-free SQLite
)

// ErrInvalidHit is wrapped by every validation failure.
var ErrInvalidHit = errors.New("invalid hit")

type Database struct {
	db            *sql.DB
	path          string
	validHitTypes map[string]bool
}

func NewDatabase(databasePath string) (*Database, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", databasePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{
		db:   db,
		path: databasePath,
		validHitTypes: map[string]bool{
			"pageview": true,
			"event":    true,
		},
	}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS hits(
	  id          INTEGER PRIMARY KEY,
	  ts_utc      INTEGER NOT NULL,
	  window_id   TEXT    NOT NULL,
	  hit_type    TEXT    NOT NULL CHECK (hit_type IN ('pageview','event')),
	  fields_json TEXT    NOT NULL CHECK (json_valid(fields_json))
	);
	CREATE INDEX IF NOT EXISTS idx_hits_ts     ON hits(ts_utc);
	CREATE INDEX IF NOT EXISTS idx_hits_window ON hits(window_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create database tables: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) ValidateHit(hit models.Hit) error {
	if hit.WindowID == "" {
		return fmt.Errorf("%w: window id cannot be empty", ErrInvalidHit)
	}
	if hit.Type == "" {
		return fmt.Errorf("%w: type cannot be empty", ErrInvalidHit)
	}
	if !d.validHitTypes[hit.Type] {
		return fmt.Errorf("%w: unknown hit type: %s", ErrInvalidHit, hit.Type)
	}
	if hit.TSUTC <= 0 {
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidHit)
	}
	return nil
}

// InsertHits stores hits in one transaction. Nothing is stored if any hit is
// invalid.
func (d *Database) InsertHits(hits []models.Hit) error {
	transaction, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	statement, err := transaction.Prepare(`INSERT INTO hits(ts_utc, window_id, hit_type, fields_json) VALUES(?,?,?,json(?))`)
	if err != nil {
		_ = transaction.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer statement.Close()

	for _, hit := range hits {
		if err := d.ValidateHit(hit); err != nil {
			_ = transaction.Rollback()
			return err
		}

		fields := hit.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		jsonData, err := json.Marshal(fields)
		if err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to marshal hit fields: %w", err)
		}
		if _, err := statement.Exec(hit.TSUTC, hit.WindowID, hit.Type, string(jsonData)); err != nil {
			_ = transaction.Rollback()
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}
	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *Database) CountHits() (int, error) {
	var count int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM hits").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count hits: %w", err)
	}
	return count, nil
}

// RecentHits returns up to limit hits, newest first.
func (d *Database) RecentHits(limit int) ([]models.Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(`SELECT ts_utc, window_id, hit_type, fields_json FROM hits ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query hits: %w", err)
	}
	defer rows.Close()

	hits := []models.Hit{}
	for rows.Next() {
		var hit models.Hit
		var fieldsJSON string
		if err := rows.Scan(&hit.TSUTC, &hit.WindowID, &hit.Type, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &hit.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode hit fields: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate hits: %w", err)
	}
	return hits, nil
}

// Size returns the size of the main database file in bytes.
func (d *Database) Size() (int64, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat database: %w", err)
	}
	return info.Size(), nil
}
