package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cgov/workflow/workflow/errs"
)

type dagNode struct {
	step         *Step
	dependencies []string
	dependents   []string
}

// DAGExecutor schedules a directed acyclic graph of steps for execution,
// running independent nodes concurrently up to a configured parallelism
// bound. Nodes are prioritized by the size of their downstream subtree, so
// a node that unblocks the most future work is dispatched first among
// several ready candidates. A cache key shared across runs lets a node
// short-circuit to a zero-duration result on a repeat invocation.
type DAGExecutor struct {
	base        *BaseWorkflow
	parallelism int

	mu    sync.Mutex
	nodes map[string]*dagNode
	order []string

	cache map[string]any
}

// NewDAGExecutor constructs an empty DAG executor.
func NewDAGExecutor(name string, activities Activities, constitutionalHash string, opts ...Option) *DAGExecutor {
	cfg := newConfig()
	for _, o := range opts {
		o(cfg)
	}
	return &DAGExecutor{
		base:        NewBaseWorkflow(name, activities, constitutionalHash, opts...),
		parallelism: cfg.parallelism,
		nodes:       make(map[string]*dagNode),
		cache:       make(map[string]any),
	}
}

// AddNode registers a step with the given dependencies. The mutation is
// atomic: if it would introduce a cycle or a self-dependency, the graph is
// left unchanged and an error is returned.
func (d *DAGExecutor) AddNode(step *Step, dependencies ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.nodes[step.Name]; exists {
		return fmt.Errorf("%w: %s", errs.ErrDuplicateNode, step.Name)
	}
	for _, dep := range dependencies {
		if dep == step.Name {
			return fmt.Errorf("%w: %s", errs.ErrSelfDependency, step.Name)
		}
	}

	node := &dagNode{step: step, dependencies: append([]string{}, dependencies...)}
	d.nodes[step.Name] = node
	for _, dep := range dependencies {
		if depNode, ok := d.nodes[dep]; ok {
			depNode.dependents = append(depNode.dependents, step.Name)
		}
	}

	if d.hasCycle() {
		delete(d.nodes, step.Name)
		for _, dep := range dependencies {
			if depNode, ok := d.nodes[dep]; ok {
				depNode.dependents = removeString(depNode.dependents, step.Name)
			}
		}
		return fmt.Errorf("%w: adding %s", errs.ErrCycleDetected, step.Name)
	}

	d.order = append(d.order, step.Name)
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// hasCycle runs DFS cycle detection over the current graph. Caller must
// hold d.mu.
func (d *DAGExecutor) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.nodes))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range d.nodes[id].dependencies {
			if _, ok := d.nodes[dep]; !ok {
				continue
			}
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for id := range d.nodes {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// downstreamSize counts the number of distinct nodes transitively unblocked
// by id completing, used as scheduling priority. Caller must hold d.mu.
func (d *DAGExecutor) downstreamSize(id string) int {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range d.nodes[cur].dependents {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)
	return len(seen)
}

// Run executes the DAG to completion. If a node references an identifier
// never added, it runs nothing and returns a failed Result whose Errors
// carry ErrMissingDependency.
func (d *DAGExecutor) Run(ctx context.Context, workflowID string, input map[string]any) Result {
	d.base.executor = func(ctx context.Context, wctx *Context, input map[string]any) (Result, error) {
		if err := d.validateDependencies(); err != nil {
			return Result{}, err
		}
		return d.schedule(ctx, wctx, input)
	}
	return d.base.Run(ctx, workflowID, input)
}

func (d *DAGExecutor) validateDependencies() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, n := range d.nodes {
		for _, dep := range n.dependencies {
			if _, ok := d.nodes[dep]; !ok {
				return fmt.Errorf("%w: %s depends on %s", errs.ErrMissingDependency, id, dep)
			}
		}
	}
	return nil
}

type nodeOutcome struct {
	name string
	err  error
}

func (d *DAGExecutor) schedule(ctx context.Context, wctx *Context, input map[string]any) (Result, error) {
	d.mu.Lock()
	remaining := make(map[string]int, len(d.nodes))
	for id, n := range d.nodes {
		remaining[id] = len(n.dependencies)
	}
	d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, d.parallelism)
	outcomes := make(chan nodeOutcome, len(d.nodes))
	dispatched := map[string]bool{}
	var firstErr error
	inFlight := 0

	dispatchReady := func() {
		mu.Lock()
		var ready []string
		if firstErr == nil {
			for id, deg := range remaining {
				if deg == 0 && !dispatched[id] {
					ready = append(ready, id)
				}
			}
		}
		d.mu.Lock()
		sort.Slice(ready, func(i, j int) bool {
			return d.downstreamSize(ready[i]) > d.downstreamSize(ready[j])
		})
		d.mu.Unlock()
		for _, id := range ready {
			dispatched[id] = true
		}
		inFlight += len(ready)
		mu.Unlock()

		for _, id := range ready {
			id := id
			wg.Add(1)
			sem <- struct{}{}
			if d.base.Metrics != nil {
				d.base.Metrics.UpdateDAGInflightNodes(len(sem))
			}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				err := d.runNode(runCtx, wctx, id, input)
				outcomes <- nodeOutcome{name: id, err: err}
			}()
		}
	}

	dispatchReady()
	for {
		mu.Lock()
		done := inFlight == 0
		mu.Unlock()
		if done {
			break
		}

		o := <-outcomes
		mu.Lock()
		inFlight--
		mu.Unlock()

		if o.err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = o.err
			}
			mu.Unlock()
			cancel()
			continue
		}

		d.mu.Lock()
		for _, dep := range d.nodes[o.name].dependents {
			remaining[dep]--
		}
		d.mu.Unlock()
		dispatchReady()
	}
	wg.Wait()

	if firstErr != nil {
		wctx.AddError(firstErr.Error())
		skipped := d.skippedNodes()
		executed, failed := d.base.RunCompensations(ctx)
		if len(executed) == 0 && len(failed) == 0 {
			return FailureResult(wctx.WorkflowID, d.base.ConstitutionalHash, wctx.Errors, wctx.ElapsedMS(), d.base.completed, d.base.failed, nil).WithSkipped(skipped), nil
		}
		return CompensatedResult(wctx.WorkflowID, d.base.ConstitutionalHash, wctx.ElapsedMS(), d.base.completed, d.base.failed, executed, failed, wctx.Errors).WithSkipped(skipped), nil
	}
	return d.base.Complete(ctx, wctx.StepResults).WithSkipped(d.skippedNodes()), nil
}

// skippedNodes returns every node id that is neither completed nor failed:
// a node whose required (non-optional) dependency failed is never dispatched
// and so never transitions out of pending, matching the cascade-skip rule.
// An optional node that fails on its own lands here too, since RunStep
// withholds recordFailed for optional steps.
func (d *DAGExecutor) skippedNodes() []string {
	done := make(map[string]bool, len(d.base.completed)+len(d.base.failed))
	for _, n := range d.base.completed {
		done[n] = true
	}
	for _, n := range d.base.failed {
		done[n] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var skipped []string
	for _, id := range d.order {
		if !done[id] {
			skipped = append(skipped, id)
		}
	}
	return skipped
}

func (d *DAGExecutor) runNode(ctx context.Context, wctx *Context, id string, workflowInput map[string]any) error {
	d.mu.Lock()
	step := d.nodes[id].step
	d.mu.Unlock()

	if step.CacheKey != "" {
		d.mu.Lock()
		cached, hit := d.cache[step.CacheKey]
		d.mu.Unlock()
		if hit {
			_ = wctx.SetStepResult(step.Name, cached)
			d.base.recordCompleted(step.Name)
			d.base.emitStepMetric(step.Name, "cache_hit")
			return nil
		}
	}

	result, err := d.base.RunStep(ctx, step, workflowInput)
	if err != nil {
		return err
	}
	if step.CacheKey != "" {
		d.mu.Lock()
		d.cache[step.CacheKey] = result
		d.mu.Unlock()
	}
	return nil
}

// Context exposes the in-flight workflow context (valid during/after Run).
func (d *DAGExecutor) Context() *Context { return d.base.context }
