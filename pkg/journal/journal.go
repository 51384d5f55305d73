// Package journal records poll outcomes in a local SQLite database so a
// stalled dashboard can be diagnosed after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"courier-pulse/pkg/model"
)

const schema = `CREATE TABLE IF NOT EXISTS polls(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	since TEXT NOT NULL,
	cursor TEXT NOT NULL,
	orders INTEGER NOT NULL,
	notifications INTEGER NOT NULL,
	has_updates INTEGER NOT NULL,
	error TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_polls_ts ON polls(ts);`

// Entry is one recorded poll. Cursor is empty and Error set for failures.
type Entry struct {
	ID            int64     `json:"id"`
	Since         string    `json:"since"`
	Cursor        string    `json:"cursor,omitempty"`
	Orders        int       `json:"orders"`
	Notifications int       `json:"notifications"`
	HasUpdates    bool      `json:"has_updates"`
	Error         string    `json:"error,omitempty"`
	Time          time.Time `json:"time"`
}

// Journal is safe for concurrent use; SQLite writes are serialised through a
// single connection.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates (if needed) and opens the journal at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal mkdir: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

// RecordSuccess stores an applied batch polled with the given since cursor.
func (j *Journal) RecordSuccess(ctx context.Context, since string, b model.UpdateBatch) error {
	return j.insert(ctx, Entry{
		Since:         since,
		Cursor:        b.Timestamp,
		Orders:        len(b.Orders),
		Notifications: len(b.Notifications),
		HasUpdates:    b.HasUpdates,
	})
}

// RecordFailure stores a failed poll.
func (j *Journal) RecordFailure(ctx context.Context, since string, pollErr error) error {
	msg := "unknown error"
	if pollErr != nil {
		msg = pollErr.Error()
	}
	return j.insert(ctx, Entry{Since: since, Error: msg})
}

func (j *Journal) insert(ctx context.Context, e Entry) error {
	hasUpdates := 0
	if e.HasUpdates {
		hasUpdates = 1
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO polls(since, cursor, orders, notifications, has_updates, error, ts) VALUES(?,?,?,?,?,?,?)`,
		e.Since, e.Cursor, e.Orders, e.Notifications, hasUpdates, e.Error, j.now().UnixNano())
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, since, cursor, orders, notifications, has_updates, error, ts FROM polls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		var (
			e          Entry
			hasUpdates int
			ts         int64
		)
		if err := rows.Scan(&e.ID, &e.Since, &e.Cursor, &e.Orders, &e.Notifications, &hasUpdates, &e.Error, &ts); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		e.HasUpdates = hasUpdates == 1
		e.Time = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes entries recorded before cutoff and reports how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM polls WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("journal prune: %w", err)
	}
	return res.RowsAffected()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
