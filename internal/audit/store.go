package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS assessments (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id    TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	model_version TEXT NOT NULL,
	probability   REAL NOT NULL,
	tier          TEXT NOT NULL,
	explained     INTEGER NOT NULL,
	payload       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_created_at ON assessments(created_at);
`

// Store keeps assessment events in SQLite for the recent-history endpoint.
// It doubles as a Sink so the emitter can feed it like any other.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the assessment database.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Deliver implements Sink.
func (s *Store) Deliver(ctx context.Context, ev *Event) error {
	if ev == nil {
		return nil
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	explained := 0
	if ev.Explained {
		explained = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO assessments (request_id, created_at, model_version, probability, tier, explained, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.ModelVersion,
		ev.Probability,
		ev.Tier,
		explained,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM assessments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	out := make([]*Event, 0, limit)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode assessment payload: %w", err)
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}
