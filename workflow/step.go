package workflow

import (
	"context"
	"time"
)

// StepStatus is a Step's or Compensation's position in its state machine.
type StepStatus string

const (
	StepPending      StepStatus = "pending"
	StepExecuting    StepStatus = "executing"
	StepCompleted    StepStatus = "completed"
	StepFailed       StepStatus = "failed"
	StepSkipped      StepStatus = "skipped"
	StepCompensating StepStatus = "compensating"
	StepCompensated  StepStatus = "compensated"
)

// StepFunc executes a step's unit of work against a built step input.
type StepFunc func(ctx context.Context, input map[string]any) (any, error)

// CompensationFunc undoes the externally observable effect of a step. It
// must be safe to invoke more than once with the same idempotency key and
// must not assume its paired step actually produced an effect.
type CompensationFunc func(ctx context.Context, input map[string]any) (bool, error)

// Step describes one unit of work plus its paired rollback.
type Step struct {
	Name                       string
	Execute                    StepFunc
	Compensation               *Compensation
	MaxAttempts                int // retry budget; 1 means no retries
	RetryDelay                 time.Duration
	Timeout                    time.Duration
	Optional                   bool
	RequiresConstitutionalCheck bool
	// CacheKey, when non-empty, lets an executor short-circuit a repeated
	// step with an identical key to a zero-duration cache hit instead of
	// re-invoking Execute.
	CacheKey string

	// runtime fields
	AttemptCount int
	StartedAt    time.Time
	CompletedAt  time.Time
	Status       StepStatus
	LastError    error
}

// CanRetry reports whether another attempt is permitted given the step's
// retry budget.
func (s *Step) CanRetry() bool {
	budget := s.MaxAttempts
	if budget < 1 {
		budget = 1
	}
	return s.AttemptCount < budget
}

func (s *Step) markExecuting() {
	s.Status = StepExecuting
	s.AttemptCount++
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
}

func (s *Step) markCompleted() {
	s.Status = StepCompleted
	s.CompletedAt = time.Now().UTC()
}

func (s *Step) markFailed(err error) {
	s.Status = StepFailed
	s.LastError = err
	s.CompletedAt = time.Now().UTC()
}

// Compensation is an idempotent rollback action. BaseWorkflow.RunStep (and
// so DAGExecutor) registers it before its paired step executes, so that a
// step which fails before producing any effect is still compensated as a
// safe no-op; SagaEngine registers it only after its step succeeds.
type Compensation struct {
	Name           string
	IdempotencyKey string
	Execute        CompensationFunc
	MaxAttempts    int
	RetryDelay     time.Duration
	Timeout        time.Duration

	// runtime fields
	Status      StepStatus
	ExecutedAt  time.Time
	LastError   error
}
