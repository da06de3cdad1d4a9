// Package checkpoint persists workflow context snapshots so a long-running
// or interrupted workflow can resume from the last durable point instead of
// restarting from scratch.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested workflow ID or checkpoint label
// does not exist.
var ErrNotFound = errors.New("checkpoint: not found")

// Snapshot is the serializable state persisted at a checkpoint. Its Data
// field is a plain map, so it can carry a workflow.Context.ToMapping result
// without this package importing the workflow package, keeping checkpoint
// storage decoupled from engine internals.
type Snapshot struct {
	WorkflowID     string
	StepID         int
	Label          string
	Data           map[string]any
	IdempotencyKey string
	Timestamp      time.Time
}

// Store persists and restores workflow checkpoints.
type Store interface {
	// Save writes a checkpoint. A duplicate IdempotencyKey is rejected,
	// preventing a retried step from committing the same checkpoint twice.
	Save(ctx context.Context, snap Snapshot) error

	// LoadLatest returns the checkpoint with the highest StepID for
	// workflowID.
	LoadLatest(ctx context.Context, workflowID string) (Snapshot, error)

	// LoadByLabel returns a checkpoint previously saved under label.
	LoadByLabel(ctx context.Context, workflowID, label string) (Snapshot, error)

	// CheckIdempotency reports whether key has already been committed.
	CheckIdempotency(ctx context.Context, key string) (bool, error)

	Close() error
}
