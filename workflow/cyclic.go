package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/cgov/workflow/workflow/errs"
)

// GlobalState is the mutable, append-only-logged state threaded through a
// CyclicGraphExecutor run. Unlike the single-pass executors, a cyclic graph
// may revisit the same node more than once, so state carries its own
// history rather than relying on the workflow context's at-most-once
// StepResults map.
type GlobalState struct {
	Values            map[string]any
	History           []StateEvent
	InterruptRequired bool
	InterruptMessage  string
}

// StateEvent records one transition in a GlobalState's history.
type StateEvent struct {
	Node      string
	Timestamp time.Time
	Values    map[string]any
}

// NewGlobalState creates an empty GlobalState.
func NewGlobalState() *GlobalState {
	return &GlobalState{Values: make(map[string]any)}
}

func (g *GlobalState) record(node string, values map[string]any) {
	g.History = append(g.History, StateEvent{Node: node, Timestamp: time.Now().UTC(), Values: copyMap(values)})
}

// CyclicNode is one vertex of a cyclic graph: a pure state reducer that
// mutates state.Values and never names its own successor. Routing belongs
// entirely to the graph's edges and conditional edges, not the node.
type CyclicNode struct {
	Name    string
	Execute func(ctx context.Context, state *GlobalState) error
	Timeout time.Duration
}

// ConditionalEdge overrides the static edges for the node it is registered
// against: once that source node finishes executing, the conditional
// edge's Execute runs and its return value is the only next node
// scheduled. An empty return falls back to the source's static edges
// instead of terminating the branch, so a router can opt out on a given
// pass rather than being forced to always route dynamically.
type ConditionalEdge struct {
	Execute func(ctx context.Context, state *GlobalState) (nextNode string, err error)
}

// CyclicGraphExecutor runs a graph that may re-enter nodes, bounded by a
// maximum iteration count so a conditional loop that never converges fails
// closed instead of running forever. A source node may fan out to any
// number of static, unconditional downstream nodes (edges) and additionally
// carry one conditional edge, which takes priority whenever it names a
// node. Re-entry into a node already executed in the current run is only
// permitted when AllowReentry is set; the zero value silently drops the
// re-entry rather than erroring, matching the "add to pending unless
// already executed" scheduling rule.
type CyclicGraphExecutor struct {
	base             *BaseWorkflow
	nodes            map[string]*CyclicNode
	edges            map[string][]string
	conditionalEdges map[string]*ConditionalEdge
	startNode        string
	maxIterations    int
	AllowReentry     bool
}

// NewCyclicGraphExecutor constructs an executor starting at startNode, with
// the given hard cap on total node visits.
func NewCyclicGraphExecutor(name string, activities Activities, constitutionalHash, startNode string, maxIterations int, opts ...Option) *CyclicGraphExecutor {
	if maxIterations <= 0 {
		maxIterations = 100
	}
	return &CyclicGraphExecutor{
		base:             NewBaseWorkflow(name, activities, constitutionalHash, opts...),
		nodes:            make(map[string]*CyclicNode),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]*ConditionalEdge),
		startNode:        startNode,
		maxIterations:    maxIterations,
	}
}

// AddNode registers a node. Re-registering the same name overwrites it.
func (c *CyclicGraphExecutor) AddNode(node *CyclicNode) {
	c.nodes[node.Name] = node
}

// AddEdge declares one or more unconditional downstream nodes for from:
// once from finishes executing, every node in to is scheduled (subject to
// the executed/AllowReentry rule). Calling AddEdge again for the same
// source appends rather than replaces.
func (c *CyclicGraphExecutor) AddEdge(from string, to ...string) {
	c.edges[from] = append(c.edges[from], to...)
}

// AddConditionalEdge registers router as from's conditional edge, replacing
// any router previously registered for from.
func (c *CyclicGraphExecutor) AddConditionalEdge(from string, router *ConditionalEdge) {
	c.conditionalEdges[from] = router
}

// nextNodes computes the node(s) to schedule once from has finished
// executing: the conditional edge's decision if from has one registered
// and it names a node, otherwise from's static edges.
func (c *CyclicGraphExecutor) nextNodes(ctx context.Context, from string, state *GlobalState) ([]string, error) {
	if router, ok := c.conditionalEdges[from]; ok {
		next, _, err := runWithTimeout(ctx, 0, func(tctx context.Context) (string, error) {
			return router.Execute(tctx, state)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: conditional edge from %s: %v", errs.ErrStepFailure, from, err)
		}
		if next != "" {
			return []string{next}, nil
		}
	}
	return c.edges[from], nil
}

// Run walks the graph from the start node until the pending set empties, an
// interrupt is requested, the iteration budget is exhausted, or a node
// errors. The pending set is seeded with the start node and, on each
// iteration, one identifier is popped and executed; its next nodes are
// then computed and enqueued unless already executed (and reentry is
// disallowed).
func (c *CyclicGraphExecutor) Run(ctx context.Context, workflowID string, input map[string]any) Result {
	state := NewGlobalState()
	for k, v := range input {
		state.Values[k] = v
	}

	c.base.executor = func(ctx context.Context, wctx *Context, input map[string]any) (Result, error) {
		executed := map[string]bool{}
		inPending := map[string]bool{}
		var pending []string

		enqueue := func(id string) {
			if inPending[id] {
				return
			}
			if executed[id] && !c.AllowReentry {
				return
			}
			inPending[id] = true
			pending = append(pending, id)
		}
		enqueue(c.startNode)

		for iteration := 0; len(pending) > 0; iteration++ {
			if iteration >= c.maxIterations {
				wctx.AddError("cyclic graph exceeded iteration budget")
				return Result{}, fmt.Errorf("%w: after %d node visits", errs.ErrIterationBudgetExceeded, iteration)
			}

			current := pending[0]
			pending = pending[1:]
			delete(inPending, current)

			node, ok := c.nodes[current]
			if !ok {
				return Result{}, fmt.Errorf("%w: %s", errs.ErrMissingDependency, current)
			}

			_, _, err := runWithTimeout(ctx, node.Timeout, func(tctx context.Context) (struct{}, error) {
				return struct{}{}, node.Execute(tctx, state)
			})
			if err != nil {
				wctx.AddError(err.Error())
				return Result{}, fmt.Errorf("%w: node %s: %v", errs.ErrStepFailure, current, err)
			}
			state.record(current, state.Values)
			c.base.recordCompleted(current)
			executed[current] = true

			if state.InterruptRequired {
				out := copyMap(state.Values)
				out["interrupt_message"] = state.InterruptMessage
				return InterruptedResult(wctx.WorkflowID, c.base.ConstitutionalHash, wctx.ElapsedMS(), c.base.completed, out), nil
			}

			next, err := c.nextNodes(ctx, current, state)
			if err != nil {
				wctx.AddError(err.Error())
				return Result{}, err
			}
			for _, id := range next {
				enqueue(id)
			}
		}

		return c.base.Complete(ctx, state.Values), nil
	}

	return c.base.Run(ctx, workflowID, input)
}

// Context exposes the in-flight workflow context (valid during/after Run).
func (c *CyclicGraphExecutor) Context() *Context { return c.base.context }
