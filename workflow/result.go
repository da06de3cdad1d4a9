package workflow

// Status is the terminal (or in-flight) classification of a workflow
// execution. The set is closed: no other value may be produced.
type Status string

const (
	StatusPending              Status = "pending"
	StatusExecuting            Status = "executing"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusTimedOut             Status = "timed_out"
	StatusCompensating         Status = "compensating"
	StatusCompensated          Status = "compensated"
	StatusPartiallyCompensated Status = "partially_compensated"
	StatusCancelled            Status = "cancelled"
)

// Result is the uniform terminal outcome returned by every executor's
// Run/Execute method. run() never raises to its caller: every code path
// converts to a Result.
type Result struct {
	Status                  Status
	WorkflowID              string
	Output                  any
	ExecutionTimeMS         float64
	StepsCompleted          []string
	StepsFailed             []string
	StepsSkipped            []string
	CompensationsExecuted   []string
	CompensationsFailed     []string
	ConstitutionalHash      string
	Errors                  []string
	AuditID                 string
}

func newResult(status Status, workflowID, hash string, elapsedMS float64) Result {
	return Result{
		Status:             status,
		WorkflowID:         workflowID,
		ConstitutionalHash: hash,
		ExecutionTimeMS:    elapsedMS,
	}
}

// SuccessResult builds a completed Result.
func SuccessResult(workflowID, hash string, output any, elapsedMS float64, stepsCompleted []string, auditID string) Result {
	r := newResult(StatusCompleted, workflowID, hash, elapsedMS)
	r.Output = output
	r.StepsCompleted = stepsCompleted
	r.AuditID = auditID
	return r
}

// FailureResult builds a failed Result.
func FailureResult(workflowID, hash string, errs []string, elapsedMS float64, stepsCompleted, stepsFailed, compensationsExecuted []string) Result {
	r := newResult(StatusFailed, workflowID, hash, elapsedMS)
	r.Errors = errs
	r.StepsCompleted = stepsCompleted
	r.StepsFailed = stepsFailed
	r.CompensationsExecuted = compensationsExecuted
	return r
}

// WithSkipped attaches the step/node names that ended neither completed nor
// failed: nodes never executed because a required (non-optional)
// dependency failed, and optional nodes whose own failure was tolerated.
// Returns r for chaining.
func (r Result) WithSkipped(skipped []string) Result {
	r.StepsSkipped = skipped
	return r
}

// TimeoutResult builds a timed_out Result.
func TimeoutResult(workflowID, hash string, elapsedMS float64, stepsCompleted []string) Result {
	r := newResult(StatusTimedOut, workflowID, hash, elapsedMS)
	r.StepsCompleted = stepsCompleted
	r.Errors = []string{"workflow execution timed out"}
	return r
}

// CompensatedResult builds a compensated or partially_compensated Result
// depending on whether any compensation failed.
func CompensatedResult(workflowID, hash string, elapsedMS float64, stepsCompleted, stepsFailed, compensationsExecuted, compensationsFailed []string, errs []string) Result {
	status := StatusCompensated
	if len(compensationsFailed) > 0 {
		status = StatusPartiallyCompensated
	}
	r := newResult(status, workflowID, hash, elapsedMS)
	r.StepsCompleted = stepsCompleted
	r.StepsFailed = stepsFailed
	r.CompensationsExecuted = compensationsExecuted
	r.CompensationsFailed = compensationsFailed
	r.Errors = errs
	return r
}

// InterruptedResult builds a pending Result representing a human-in-the-loop
// pause: the workflow has not failed, but awaits external input before a
// re-entrant run can resume it.
func InterruptedResult(workflowID, hash string, elapsedMS float64, stepsCompleted []string, output any) Result {
	r := newResult(StatusPending, workflowID, hash, elapsedMS)
	r.StepsCompleted = stepsCompleted
	r.Output = output
	return r
}

// IsSuccessful reports whether the execution ended in the completed state.
func (r Result) IsSuccessful() bool { return r.Status == StatusCompleted }

// IsFailed reports whether the execution ended in a failure-shaped state.
func (r Result) IsFailed() bool {
	switch r.Status {
	case StatusFailed, StatusTimedOut, StatusPartiallyCompensated, StatusCancelled:
		return true
	default:
		return false
	}
}

// ToMapping serializes the result to a stable-keyed mapping.
func (r Result) ToMapping() map[string]any {
	return map[string]any{
		"status":                 string(r.Status),
		"workflow_id":            r.WorkflowID,
		"output":                 r.Output,
		"execution_time_ms":      r.ExecutionTimeMS,
		"steps_completed":        append([]string{}, r.StepsCompleted...),
		"steps_failed":           append([]string{}, r.StepsFailed...),
		"steps_skipped":          append([]string{}, r.StepsSkipped...),
		"compensations_executed": append([]string{}, r.CompensationsExecuted...),
		"compensations_failed":   append([]string{}, r.CompensationsFailed...),
		"constitutional_hash":    r.ConstitutionalHash,
		"errors":                 append([]string{}, r.Errors...),
		"audit_id":               r.AuditID,
	}
}
