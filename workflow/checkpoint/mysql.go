package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a shared, multi-writer Store backed by MySQL, intended for
// production deployments running more than one workflow worker.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// checkpoints table exists.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: ping mysql: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			workflow_id VARCHAR(255) NOT NULL,
			step_id INT NOT NULL,
			label VARCHAR(255) DEFAULT '',
			data JSON NOT NULL,
			idempotency_key VARCHAR(255) UNIQUE,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_workflow_step (workflow_id, step_id),
			INDEX idx_workflow_label (workflow_id, label)
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: create schema: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Save(ctx context.Context, snap Snapshot) error {
	dataJSON, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (workflow_id, step_id, label, data, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snap.WorkflowID, snap.StepID, snap.Label, string(dataJSON), nullableKey(snap.IdempotencyKey), snap.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("checkpoint: save: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadLatest(ctx context.Context, workflowID string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, step_id, label, data, idempotency_key, created_at
		FROM checkpoints WHERE workflow_id = ? ORDER BY step_id DESC LIMIT 1
	`, workflowID)
	return scanMySQLSnapshot(row)
}

func (s *MySQLStore) LoadByLabel(ctx context.Context, workflowID, label string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, step_id, label, data, idempotency_key, created_at
		FROM checkpoints WHERE workflow_id = ? AND label = ? LIMIT 1
	`, workflowID, label)
	return scanMySQLSnapshot(row)
}

func scanMySQLSnapshot(row *sql.Row) (Snapshot, error) {
	var (
		snap     Snapshot
		dataJSON string
		idemKey  sql.NullString
		created  time.Time
	)
	if err := row.Scan(&snap.WorkflowID, &snap.StepID, &snap.Label, &dataJSON, &idemKey, &created); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("checkpoint: scan: %w", err)
	}
	snap.IdempotencyKey = idemKey.String
	snap.Timestamp = created
	if err := json.Unmarshal([]byte(dataJSON), &snap.Data); err != nil {
		return Snapshot{}, fmt.Errorf("checkpoint: unmarshal data: %w", err)
	}
	return snap, nil
}

func (s *MySQLStore) CheckIdempotency(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE idempotency_key = ?`, key).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checkpoint: check idempotency: %w", err)
	}
	return count > 0, nil
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
