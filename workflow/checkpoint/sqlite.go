package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a single-file SQLite-backed Store. It is intended for
// development, single-process deployments, and prototyping before a
// migration to a shared database.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed checkpoint
// store at path. Use ":memory:" for a process-local database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("checkpoint: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL,
			step_id INTEGER NOT NULL,
			label TEXT DEFAULT '',
			data TEXT NOT NULL,
			idempotency_key TEXT UNIQUE,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON checkpoints(workflow_id, step_id);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_label ON checkpoints(workflow_id, label);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("checkpoint: create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	dataJSON, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, step_id, label, data, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.WorkflowID, snap.StepID, snap.Label, string(dataJSON), nullableKey(snap.IdempotencyKey), snap.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

func nullableKey(key string) any {
	if key == "" {
		return nil
	}
	return key
}

func (s *SQLiteStore) LoadLatest(ctx context.Context, workflowID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, step_id, label, data, idempotency_key, created_at
		FROM checkpoints WHERE workflow_id = ? ORDER BY step_id DESC LIMIT 1
	`, workflowID)
	return scanSnapshot(row)
}

func (s *SQLiteStore) LoadByLabel(ctx context.Context, workflowID, label string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, step_id, label, data, idempotency_key, created_at
		FROM checkpoints WHERE workflow_id = ? AND label = ? LIMIT 1
	`, workflowID, label)
	return scanSnapshot(row)
}

func scanSnapshot(row *sql.Row) (Snapshot, error) {
	var (
		snap      Snapshot
		dataJSON  string
		idemKey   sql.NullString
		createdAt string
	)
	if err := row.Scan(&snap.WorkflowID, &snap.StepID, &snap.Label, &dataJSON, &idemKey, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("checkpoint: scan: %w", err)
	}
	snap.IdempotencyKey = idemKey.String
	if err := json.Unmarshal([]byte(dataJSON), &snap.Data); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: unmarshal data: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: parse timestamp: %w", err)
	}
	snap.Timestamp = ts
	return snap, nil
}

func (s *SQLiteStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE idempotency_key = ?`, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checkpoint: check idempotency: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
