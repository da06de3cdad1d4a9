package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cgov/workflow/workflow/emit"
	"github.com/cgov/workflow/workflow/errs"
)

// Executor is the user-supplied body of a BaseWorkflow: given an input and
// a running context, it drives one or more Steps to a terminal outcome.
type Executor func(ctx context.Context, wctx *Context, input map[string]any) (Result, error)

// BaseWorkflow is the abstract run-loop shared by every concrete workflow:
// it wraps a user-defined Executor in an overall timeout, and exposes
// RunStep/RegisterCompensation/RunCompensations/Complete so the Executor
// can drive individual steps while the base workflow accounts for
// governance checks, retries, compensation bookkeeping and metrics.
//
// Compensation-registration rule for this engine and for DAGExecutor:
// a step's compensation is pushed onto the stack BEFORE its execute is
// entered, so a step that fails before producing any effect is still
// compensated as a safe no-op. SagaEngine instead registers after success
// (see saga.go) — the two rules are intentionally different and must never
// be silently mixed within one executor.
type BaseWorkflow struct {
	WorkflowName       string
	Activities         Activities
	ConstitutionalHash string
	TimeoutSeconds     int
	FailClosed         bool

	Emitter emit.Emitter
	Metrics *PrometheusMetrics

	context       *Context
	bookkeeping   sync.Mutex
	compensations []*Compensation
	completed     []string
	failed        []string
	executor      Executor
}

// recordCompleted appends name to the completed list under lock, so
// concurrent executors (DAGExecutor) can share one BaseWorkflow safely.
func (w *BaseWorkflow) recordCompleted(name string) {
	w.bookkeeping.Lock()
	defer w.bookkeeping.Unlock()
	w.completed = append(w.completed, name)
}

func (w *BaseWorkflow) recordFailed(name string) {
	w.bookkeeping.Lock()
	defer w.bookkeeping.Unlock()
	w.failed = append(w.failed, name)
}

func (w *BaseWorkflow) registerCompensationLocked(c *Compensation) {
	if c == nil {
		return
	}
	w.bookkeeping.Lock()
	defer w.bookkeeping.Unlock()
	w.compensations = append(w.compensations, c)
}

// NewBaseWorkflow constructs a BaseWorkflow bound to the given activities
// and governance hash. A zero TimeoutSeconds defaults to 300s, matching the
// base specification.
func NewBaseWorkflow(name string, activities Activities, constitutionalHash string, opts ...Option) *BaseWorkflow {
	cfg := newConfig()
	for _, o := range opts {
		o(cfg)
	}
	timeout := cfg.overallTimeoutSeconds
	if timeout == 0 {
		timeout = 300
	}
	return &BaseWorkflow{
		WorkflowName:       name,
		Activities:         activities,
		ConstitutionalHash: constitutionalHash,
		TimeoutSeconds:     timeout,
		FailClosed:         !cfg.failOpen,
		Emitter:            cfg.emitter,
		Metrics:            cfg.metrics,
	}
}

// Run executes body under the configured overall timeout, handling
// timeout/panic-free error conversion into a Result, and emits duration and
// execution-count metrics that never affect the returned Result even if
// metrics emission itself fails.
func (w *BaseWorkflow) Run(ctx context.Context, workflowID string, input map[string]any) Result {
	if workflowID == "" {
		workflowID = fmt.Sprintf("%s-run", w.WorkflowName)
	}
	w.context = NewContext(workflowID, w.ConstitutionalHash)
	w.context.Metadata["input"] = input
	start := time.Now()

	status := StatusCompleted
	result, bodyErr := func() (res Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("workflow panic: %v", r)
			}
		}()
		r, execErr, timedOut := w.runWithOverallTimeout(ctx, input)
		if timedOut {
			w.context.AddError("workflow execution timed out")
			w.emit(workflowID, "workflow_timeout", nil)
			executed := w.runCompensationsLIFO(ctx)
			return TimeoutResult(workflowID, w.ConstitutionalHash, w.context.ElapsedMS(), w.completed), fmt.Errorf("%w: %v", errs.ErrOverallTimeout, executed)
		}
		return r, execErr
	}()

	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	if bodyErr != nil && result.Status == "" {
		w.context.AddError(bodyErr.Error())
		w.runCompensationsLIFO(ctx)
		result = FailureResult(workflowID, w.ConstitutionalHash, w.context.Errors, elapsed, w.completed, w.failed, compensationNames(w.compensations, StepCompensated))
	}
	if result.Status != StatusCompleted {
		status = result.Status
	}
	w.emitMetrics(status, elapsed)
	return result
}

func (w *BaseWorkflow) runWithOverallTimeout(ctx context.Context, input map[string]any) (Result, error, bool) {
	timeout := time.Duration(w.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		r, err := w.execute(ctx, input)
		return r, err, false
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		r   Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		r, err := w.execute(timeoutCtx, input)
		done <- out{r, err}
	}()
	select {
	case o := <-done:
		return o.r, o.err, false
	case <-timeoutCtx.Done():
		return Result{}, timeoutCtx.Err(), true
	}
}

// execute runs the installed executor; a BaseWorkflow with no executor
// immediately completes with no output.
func (w *BaseWorkflow) execute(ctx context.Context, input map[string]any) (Result, error) {
	if w.executor == nil {
		return w.Complete(ctx, nil), nil
	}
	return w.executor(ctx, w.context, input)
}

// SetExecutor installs the workflow body driven by Run. Saga, DAG and
// Cyclic executors each compose a BaseWorkflow and assign their scheduling
// loop to its executor field directly; ConstitutionalValidationWorkflow
// installs its body through SetExecutor.
func (w *BaseWorkflow) SetExecutor(e Executor) { w.executor = e }

// Context returns the in-flight workflow context (valid only during/after Run).
func (w *BaseWorkflow) Context() *Context { return w.context }

// RegisterCompensation pushes a compensation onto this workflow's LIFO
// rollback stack. Safe to call with a nil compensation (no-op), matching
// optional per-step compensations.
func (w *BaseWorkflow) RegisterCompensation(c *Compensation) {
	w.registerCompensationLocked(c)
}

// RunStep executes step to completion (success, optional-skip, or
// non-optional failure). The compensation is registered before entering
// the retry loop, consistent with the base-engine/DAG "before" rule.
func (w *BaseWorkflow) RunStep(ctx context.Context, step *Step, input map[string]any) (any, error) {
	if step.RequiresConstitutionalCheck {
		if err := w.checkHash(ctx, step.Name, input); err != nil {
			return nil, err
		}
	}

	w.RegisterCompensation(step.Compensation)

	var lastErr error
	for step.CanRetry() {
		step.markExecuting()
		stepInput := map[string]any{
			"workflow_id":         w.context.WorkflowID,
			"step_name":           step.Name,
			"attempt":             step.AttemptCount,
			"input":               input,
			"context":             w.context.StepResults,
			"constitutional_hash": w.ConstitutionalHash,
		}

		result, isTimeout, err := runWithTimeout(ctx, step.Timeout, func(c context.Context) (any, error) {
			return step.Execute(c, stepInput)
		})
		if err == nil {
			step.markCompleted()
			w.recordCompleted(step.Name)
			if serr := w.context.SetStepResult(step.Name, result); serr != nil {
				return nil, serr
			}
			w.emit(w.context.WorkflowID, "step_complete", map[string]any{"step": step.Name})
			w.emitStepMetric(step.Name, "success")
			return result, nil
		}

		if isTimeout {
			lastErr = fmt.Errorf("%w: step %s", errs.ErrStepTimeout, step.Name)
		} else {
			lastErr = fmt.Errorf("%w: step %s: %v", errs.ErrStepFailure, step.Name, err)
		}
		w.emit(w.context.WorkflowID, "step_retry", map[string]any{"step": step.Name, "error": lastErr.Error()})

		if step.CanRetry() {
			w.emitRetryMetric(step.Name)
			if serr := sleep(ctx, step.RetryDelay); serr != nil {
				lastErr = serr
				break
			}
		}
	}

	step.markFailed(lastErr)
	w.context.AddError(lastErr.Error())
	w.emitStepMetric(step.Name, "failed")
	if !step.Optional {
		w.recordFailed(step.Name)
		return nil, lastErr
	}
	// An optional step's own failure is tolerated: it is recorded as
	// neither completed nor failed, so callers that classify leftover
	// node ids as skipped (DAGExecutor.skippedNodes) pick it up correctly.
	return nil, nil
}

func (w *BaseWorkflow) checkHash(ctx context.Context, stepName string, input map[string]any) error {
	provided, _ := input["constitutional_hash"].(string)
	if provided == "" {
		provided = w.ConstitutionalHash
	}
	validation, err := w.Activities.ValidateConstitutionalHash(ctx, w.context.WorkflowID, provided, w.ConstitutionalHash)
	if err == nil && validation.IsValid {
		return nil
	}
	w.context.AddError(fmt.Sprintf("constitutional hash mismatch on step %s", stepName))
	if w.FailClosed {
		return fmt.Errorf("%w: step %s", errs.ErrConstitutionalMismatch, stepName)
	}
	w.emit(w.context.WorkflowID, "workflow_step_fail_open", map[string]any{"step": stepName})
	return nil
}

// RunCompensations runs every registered compensation in LIFO order and
// returns the names that succeeded and failed, without mutating workflow
// status itself (callers decide the resulting Status).
func (w *BaseWorkflow) RunCompensations(ctx context.Context) (executed, failed []string) {
	if len(w.compensations) == 0 {
		return nil, nil
	}
	for i := len(w.compensations) - 1; i >= 0; i-- {
		c := w.compensations[i]
		if c == nil || c.Execute == nil {
			continue
		}
		if w.runOneCompensation(ctx, c) {
			executed = append(executed, c.Name)
		} else {
			failed = append(failed, c.Name)
		}
	}
	return executed, failed
}

func (w *BaseWorkflow) runOneCompensation(ctx context.Context, c *Compensation) bool {
	key := defaultIdempotencyKey(c, w.context.WorkflowID)
	input := map[string]any{
		"workflow_id":         w.context.WorkflowID,
		"compensation_name":   c.Name,
		"context":             w.context.StepResults,
		"idempotency_key":     key,
		"constitutional_hash": w.ConstitutionalHash,
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.Status = StepExecuting
		ok, _, err := runWithTimeout(ctx, c.Timeout, func(cc context.Context) (bool, error) {
			return c.Execute(cc, input)
		})
		if err == nil && ok {
			c.Status = StepCompensated
			c.ExecutedAt = time.Now().UTC()
			w.emit(w.context.WorkflowID, "compensation_complete", map[string]any{"compensation": c.Name})
			return true
		}
		c.LastError = err
		if attempt+1 < maxAttempts {
			_ = sleep(ctx, c.RetryDelay)
		}
	}
	c.Status = StepFailed
	w.context.AddError(fmt.Sprintf("compensation %s failed: %v", c.Name, c.LastError))
	return false
}

func (w *BaseWorkflow) runCompensationsLIFO(ctx context.Context) (executed []string) {
	executed, _ = w.RunCompensations(ctx)
	return executed
}

// Complete finalizes a successful run, recording a best-effort audit event
// whose failure is captured but never invalidates the workflow.
func (w *BaseWorkflow) Complete(ctx context.Context, output any) Result {
	auditID := ""
	if w.Activities != nil {
		id, err := w.Activities.RecordAudit(ctx, w.context.WorkflowID, "workflow_completed", map[string]any{
			"output":           output,
			"steps_completed":  w.completed,
			"execution_time_ms": w.context.ElapsedMS(),
		})
		if err == nil {
			auditID = id
		}
	}
	w.emit(w.context.WorkflowID, "workflow_completed", map[string]any{"steps_completed": len(w.completed)})
	return SuccessResult(w.context.WorkflowID, w.ConstitutionalHash, output, w.context.ElapsedMS(), w.completed, auditID)
}

func (w *BaseWorkflow) emit(runID, msg string, meta map[string]any) {
	if w.Emitter == nil {
		return
	}
	w.Emitter.Emit(emit.Event{RunID: runID, Msg: msg, Meta: meta})
}

func (w *BaseWorkflow) emitMetrics(status Status, elapsedMS float64) {
	if w.Metrics == nil {
		return
	}
	w.Metrics.RecordWorkflowDuration(w.WorkflowName, string(status), elapsedMS)
	w.Metrics.IncWorkflowExecutions(w.WorkflowName, string(status))
}

func (w *BaseWorkflow) emitStepMetric(stepName, status string) {
	if w.Metrics == nil {
		return
	}
	w.Metrics.RecordStepDuration(w.WorkflowName, stepName, status, 0)
}

func (w *BaseWorkflow) emitRetryMetric(stepName string) {
	if w.Metrics == nil {
		return
	}
	w.Metrics.IncStepRetries(w.WorkflowName, stepName)
}

func compensationNames(cs []*Compensation, status StepStatus) []string {
	var out []string
	for _, c := range cs {
		if c != nil && c.Status == status {
			out = append(out, c.Name)
		}
	}
	return out
}
