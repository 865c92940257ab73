// Package localstore keeps the schedule list on disk as a single JSON array
// in a small SQLite key/value table.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/hray3182/chime/internal/models"
)

// SchedulesKey is the single key the whole list is stored under.
const SchedulesKey = "schedules"

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);`

// DB wraps *sql.DB. Creates the file and schema if missing.
type DB struct {
	*sql.DB
}

func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer is all this store ever needs and it avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &DB{DB: db}, nil
}

// Load returns the stored schedules. Records that are not JSON objects are
// skipped; a missing key is an empty list. Normalization is left to the caller.
func (db *DB) Load(ctx context.Context) ([]models.Schedule, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, SchedulesKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schedules: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("decoding schedules: %w", err)
	}

	out := make([]models.Schedule, 0, len(raw))
	for i, r := range raw {
		var s models.Schedule
		if err := json.Unmarshal(r, &s); err != nil {
			logrus.WithError(err).WithField("index", i).Warn("Skipping unreadable schedule record")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Save replaces the stored list.
func (db *DB) Save(ctx context.Context, schedules []models.Schedule) error {
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	data, err := json.Marshal(schedules)
	if err != nil {
		return fmt.Errorf("encoding schedules: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		SchedulesKey, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("writing schedules: %w", err)
	}
	return nil
}

// PutRaw stores an arbitrary value under key. Used to seed or inspect data.
func (db *DB) PutRaw(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	return err
}
