package template

import (
	"context"
	"fmt"
	"time"

	wf "github.com/cgov/workflow/workflow"
)

// ActivityFunc is a registered action a template step can reference.
type ActivityFunc func(ctx context.Context, input map[string]any) (any, error)

// Runnable is anything a compiled template produces: every engine in the
// workflow package shares this Run signature.
type Runnable interface {
	Run(ctx context.Context, workflowID string, input map[string]any) wf.Result
}

// Registry maps action names to concrete functions and compiles validated
// Templates into Runnables. Unresolved action names fail at Compile time,
// not at run time.
type Registry struct {
	actions    map[string]ActivityFunc
	activities wf.Activities
}

// NewRegistry builds a Registry backed by activities for constitutional
// checks, policy evaluation, and audit recording.
func NewRegistry(activities wf.Activities) *Registry {
	if activities == nil {
		activities = wf.NoopActivities{}
	}
	return &Registry{actions: make(map[string]ActivityFunc), activities: activities}
}

// RegisterAction binds name to fn so template steps can reference it.
func (r *Registry) RegisterAction(name string, fn ActivityFunc) {
	r.actions[name] = fn
}

// Compile validates tmpl, resolves every step's action against the
// registry, and builds the Runnable tmpl.workflow_type selects.
func (r *Registry) Compile(tmpl Template) (Runnable, error) {
	if errs := tmpl.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("template: invalid template %q: %v", tmpl.Name, errs)
	}

	steps := make([]*wf.Step, 0, len(tmpl.Steps))
	for _, ts := range tmpl.Steps {
		step, err := r.buildStep(ts)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	switch tmpl.WorkflowType {
	case TypeSequential:
		return r.compileSequential(tmpl, steps), nil
	case TypeParallel:
		return r.compileParallel(tmpl, steps)
	case TypeSaga:
		return wf.NewSagaEngine(tmpl.Name, r.activities, tmpl.ConstitutionalHash, steps, r.options(tmpl)...), nil
	case TypeDAG:
		return r.compileDAG(tmpl, steps)
	case TypeCyclic:
		return r.compileCyclic(tmpl)
	default:
		return nil, fmt.Errorf("template: unknown workflow_type %q", tmpl.WorkflowType)
	}
}

func (r *Registry) buildStep(ts TemplateStep) (*wf.Step, error) {
	fn, ok := r.actions[ts.Action]
	if !ok {
		return nil, fmt.Errorf("template: unresolved action %q for step %q", ts.Action, ts.Name)
	}

	step := &wf.Step{
		Name:        ts.Name,
		MaxAttempts: ts.MaxAttempts,
		Optional:    ts.Optional,
		Timeout:     time.Duration(ts.TimeoutSeconds) * time.Second,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			merged := make(map[string]any, len(input)+len(ts.Params))
			for k, v := range input {
				merged[k] = v
			}
			for k, v := range ts.Params {
				merged[k] = v
			}
			return fn(ctx, merged)
		},
	}

	if ts.CompensateAction != "" {
		compFn, ok := r.actions[ts.CompensateAction]
		if !ok {
			return nil, fmt.Errorf("template: unresolved compensate_action %q for step %q", ts.CompensateAction, ts.Name)
		}
		step.Compensation = &wf.Compensation{
			Name: ts.Name + ":compensate",
			Execute: func(ctx context.Context, input map[string]any) (bool, error) {
				_, err := compFn(ctx, input)
				return err == nil, err
			},
		}
	}

	return step, nil
}

func (r *Registry) options(tmpl Template) []wf.Option {
	var opts []wf.Option
	if tmpl.Config.FailOpen {
		opts = append(opts, wf.WithFailOpen(true))
	}
	return opts
}

// compileSequential runs the steps in order on a SagaEngine. A step with a
// compensate_action still has its compensation registered once it
// succeeds; with no compensate_action on any step, the engine behaves as a
// simple ordered run.
func (r *Registry) compileSequential(tmpl Template, steps []*wf.Step) Runnable {
	return wf.NewSagaEngine(tmpl.Name, r.activities, tmpl.ConstitutionalHash, steps, r.options(tmpl)...)
}

// compileParallel runs every step as an independent DAG node: depends_on is
// ignored, since the "parallel" workflow_type models a fan-out with no
// ordering between steps, as opposed to "dag" which honors depends_on.
func (r *Registry) compileParallel(tmpl Template, steps []*wf.Step) (Runnable, error) {
	opts := r.options(tmpl)
	if tmpl.Config.ParallelismLimit > 0 {
		opts = append(opts, wf.WithParallelism(tmpl.Config.ParallelismLimit))
	}
	dag := wf.NewDAGExecutor(tmpl.Name, r.activities, tmpl.ConstitutionalHash, opts...)
	for _, s := range steps {
		if err := dag.AddNode(s); err != nil {
			return nil, fmt.Errorf("template: compile parallel: %w", err)
		}
	}
	return dag, nil
}

func (r *Registry) compileDAG(tmpl Template, steps []*wf.Step) (Runnable, error) {
	opts := r.options(tmpl)
	if tmpl.Config.ParallelismLimit > 0 {
		opts = append(opts, wf.WithParallelism(tmpl.Config.ParallelismLimit))
	}
	dag := wf.NewDAGExecutor(tmpl.Name, r.activities, tmpl.ConstitutionalHash, opts...)

	byName := make(map[string]*wf.Step, len(steps))
	for _, s := range steps {
		byName[s.Name] = s
	}
	for i, ts := range tmpl.Steps {
		if err := dag.AddNode(steps[i], ts.DependsOn...); err != nil {
			return nil, fmt.Errorf("template: compile dag: %w", err)
		}
	}
	return dag, nil
}

func (r *Registry) compileCyclic(tmpl Template) (Runnable, error) {
	maxIterations := tmpl.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 100
	}
	cyclic := wf.NewCyclicGraphExecutor(tmpl.Name, r.activities, tmpl.ConstitutionalHash, tmpl.Config.StartNode, maxIterations, r.options(tmpl)...)
	cyclic.AllowReentry = tmpl.Config.AllowReentry

	for _, ts := range tmpl.Steps {
		fn, ok := r.actions[ts.Action]
		if !ok {
			return nil, fmt.Errorf("template: unresolved action %q for node %q", ts.Action, ts.Name)
		}

		// lastNext carries the most recent "next" value the node's own
		// action emitted, read back by its conditional edge immediately
		// afterward. An action that doesn't emit "next" leaves it empty,
		// which falls the routing decision through to the static edges
		// declared via depends_on below.
		var lastNext string
		cyclic.AddNode(&wf.CyclicNode{
			Name:    ts.Name,
			Timeout: time.Duration(ts.TimeoutSeconds) * time.Second,
			Execute: func(ctx context.Context, state *wf.GlobalState) error {
				out, err := fn(ctx, state.Values)
				if err != nil {
					return err
				}
				lastNext = ""
				if m, ok := out.(map[string]any); ok {
					for k, v := range m {
						state.Values[k] = v
					}
					if next, ok := m["next"].(string); ok {
						lastNext = next
					}
				}
				return nil
			},
		})

		// depends_on names every unconditional downstream node, not just
		// the first: a cyclic node can fan out to several successors.
		if len(ts.DependsOn) > 0 {
			cyclic.AddEdge(ts.Name, ts.DependsOn...)
		}
		cyclic.AddConditionalEdge(ts.Name, &wf.ConditionalEdge{
			Execute: func(ctx context.Context, state *wf.GlobalState) (string, error) {
				return lastNext, nil
			},
		})
	}
	return cyclic, nil
}
