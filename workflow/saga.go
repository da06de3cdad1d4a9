package workflow

import (
	"context"
	"fmt"
)

// SagaEngine runs an ordered list of steps, registering each step's
// compensation only AFTER that step succeeds — the opposite of
// BaseWorkflow/DAGExecutor's before-execute rule. This means a step that
// never produced an effect is never rolled back, at the cost of a step
// whose execute partially succeeds before erroring having no compensation
// registered for that attempt.
type SagaEngine struct {
	base  *BaseWorkflow
	steps []*Step
}

// NewSagaEngine constructs a saga over the given ordered steps.
func NewSagaEngine(name string, activities Activities, constitutionalHash string, steps []*Step, opts ...Option) *SagaEngine {
	return &SagaEngine{
		base:  NewBaseWorkflow(name, activities, constitutionalHash, opts...),
		steps: steps,
	}
}

// Run executes the saga's steps in order. On the first non-optional step
// failure, every compensation registered so far is rolled back in LIFO
// order and a compensated/partially_compensated/failed result is returned
// depending on rollback outcome, mirroring _determine_status: completed if
// no critical failure occurred, failed if a critical failure occurred with
// no compensation attempted, compensated if every attempted compensation
// succeeded, partially_compensated if any attempted compensation failed.
func (s *SagaEngine) Run(ctx context.Context, workflowID string, input map[string]any) Result {
	s.base.executor = func(ctx context.Context, wctx *Context, input map[string]any) (Result, error) {
		var criticalErr error
		var lastOutput any
		for _, step := range s.steps {
			out, ok, err := s.runSagaStep(ctx, step, input)
			if ok {
				lastOutput = out
			}
			if err != nil {
				if step.Optional {
					continue
				}
				criticalErr = err
				break
			}
		}

		if criticalErr == nil {
			return s.base.Complete(ctx, lastOutput), nil
		}

		wctx.AddError(criticalErr.Error())
		if len(s.base.compensations) == 0 {
			return FailureResult(workflowID, s.base.ConstitutionalHash, wctx.Errors, wctx.ElapsedMS(), s.base.completed, s.base.failed, nil), nil
		}

		executed, failed := s.base.RunCompensations(ctx)
		return CompensatedResult(workflowID, s.base.ConstitutionalHash, wctx.ElapsedMS(), s.base.completed, s.base.failed, executed, failed, wctx.Errors), nil
	}
	return s.base.Run(ctx, workflowID, input)
}

// runSagaStep executes one step WITHOUT pre-registering its compensation,
// then pushes the compensation only if the step actually succeeded. A
// swallowed optional failure reports err == nil from RunStep, so success is
// judged by step.Status rather than the error alone, and ok reports whether
// result is a genuine step output fit to become the saga's eventual Output.
func (s *SagaEngine) runSagaStep(ctx context.Context, step *Step, input map[string]any) (result any, ok bool, err error) {
	compensation := step.Compensation
	step.Compensation = nil
	defer func() { step.Compensation = compensation }()

	result, err = s.base.RunStep(ctx, step, input)
	if err != nil {
		return nil, false, fmt.Errorf("saga step %s: %w", step.Name, err)
	}
	if step.Status != StepCompleted {
		return nil, false, nil
	}
	s.base.RegisterCompensation(compensation)
	return result, true, nil
}

// Context exposes the in-flight workflow context (valid during/after Run).
func (s *SagaEngine) Context() *Context { return s.base.context }
