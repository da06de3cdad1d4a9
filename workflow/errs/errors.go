// Package errs defines the sentinel error kinds shared across the workflow
// engine's executors (base workflow, saga, DAG, cyclic graph).
package errs

import "errors"

// ErrConstitutionalMismatch indicates the governance hash presented at a
// trust boundary did not match the expected value.
var ErrConstitutionalMismatch = errors.New("constitutional hash mismatch")

// ErrStepTimeout indicates a step's per-attempt deadline was exceeded.
var ErrStepTimeout = errors.New("step execution timed out")

// ErrStepFailure indicates a step's execute call returned an error.
var ErrStepFailure = errors.New("step execution failed")

// ErrOverallTimeout indicates the workflow's outer deadline was exceeded.
var ErrOverallTimeout = errors.New("workflow execution timed out")

// ErrCompensationFailure indicates a rollback action failed after
// exhausting its retry budget.
var ErrCompensationFailure = errors.New("compensation failed")

// ErrCycleDetected indicates a DAG mutation would introduce a cycle; the
// mutation is rejected atomically and the graph is left unchanged.
var ErrCycleDetected = errors.New("dependency graph would contain a cycle")

// ErrMissingDependency indicates a DAG node declares a dependency that is
// absent at execution time.
var ErrMissingDependency = errors.New("node references a missing dependency")

// ErrDuplicateNode indicates add_node was called with an identifier already
// present in the graph.
var ErrDuplicateNode = errors.New("duplicate node identifier")

// ErrSelfDependency indicates a node declares itself as a dependency.
var ErrSelfDependency = errors.New("node cannot depend on itself")

// ErrIterationBudgetExceeded indicates a cyclic graph execution did not
// converge within its configured iteration budget.
var ErrIterationBudgetExceeded = errors.New("cyclic graph exceeded iteration budget")

// ErrCancelled indicates the caller's context was cancelled.
var ErrCancelled = errors.New("workflow execution cancelled")

// ErrInvalidRetryPolicy indicates a RetryPolicy failed validation.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrStepResultConflict indicates a step result was set twice under the
// same name with two different values.
var ErrStepResultConflict = errors.New("step result already set with a different value")

// ErrUnknownAction indicates a template referenced an action name that was
// never registered with the template engine.
var ErrUnknownAction = errors.New("unknown registered action")

// ErrTemplateInvalid indicates a template failed validation.
var ErrTemplateInvalid = errors.New("workflow template failed validation")
