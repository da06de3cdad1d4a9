// Package workflow implements a constitutional-governance workflow engine:
// a composable, concurrent orchestration runtime executing multi-step
// business processes under explicit safety contracts. A shared governance
// invariant (the "constitutional hash") is enforced at trust boundaries,
// every observable side effect is paired with a compensating action, and
// long-running work is bounded by timeouts and retries.
package workflow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cgov/workflow/workflow/errs"
)

// Context carries the shared, per-execution state of a single workflow run.
// It is owned by exactly one execution: the executor that created it is the
// only writer. Step results are set at most once per name; re-setting a
// different value under the same name is rejected.
type Context struct {
	mu sync.Mutex

	WorkflowID          string
	ConstitutionalHash  string
	TenantID            string
	CorrelationID       string
	ParentWorkflowID    string
	TraceID             string
	StepResults         map[string]any
	Errors              []string
	Metadata            map[string]any
	CreatedAt           time.Time
}

// NewContext creates a fresh root context. CorrelationID and TraceID are
// both set to the same newly generated identifier.
func NewContext(workflowID, constitutionalHash string) *Context {
	traceID := uuid.NewString()
	return &Context{
		WorkflowID:         workflowID,
		ConstitutionalHash: constitutionalHash,
		CorrelationID:      traceID,
		TraceID:            traceID,
		StepResults:        make(map[string]any),
		Errors:             nil,
		Metadata:           make(map[string]any),
		CreatedAt:          time.Now().UTC(),
	}
}

// NewRootContext generates a random workflow identifier and creates a
// context for it, mirroring the original implementation's create() factory.
func NewRootContext(constitutionalHash, tenantID string, metadata map[string]any) *Context {
	ctx := NewContext(uuid.NewString(), constitutionalHash)
	ctx.TenantID = tenantID
	if metadata != nil {
		ctx.Metadata = copyMap(metadata)
	}
	return ctx
}

// GetStepResult returns the recorded result for name, if any.
func (c *Context) GetStepResult(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.StepResults[name]
	return v, ok
}

// SetStepResult records the result of a completed step. Setting the same
// name twice with an identical value (per fmt.Sprintf("%#v", ...) equality)
// is a no-op; setting it twice with a different value is an error, per the
// context's at-most-once ownership contract.
func (c *Context) SetStepResult(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.StepResults[name]; ok {
		if fmt.Sprintf("%#v", existing) != fmt.Sprintf("%#v", value) {
			return fmt.Errorf("%w: workflow %s: step result %q already set to a different value", errs.ErrStepResultConflict, c.WorkflowID, name)
		}
		return nil
	}
	c.StepResults[name] = value
	return nil
}

// HasStepResult reports whether a step has already recorded a result.
func (c *Context) HasStepResult(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.StepResults[name]
	return ok
}

// AddError appends an error description to the context's error log.
func (c *Context) AddError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors = append(c.Errors, msg)
}

// HasErrors reports whether any errors have been recorded.
func (c *Context) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Errors) > 0
}

// ElapsedMS returns the wall-clock time since the context was created, in
// milliseconds.
func (c *Context) ElapsedMS() float64 {
	c.mu.Lock()
	created := c.CreatedAt
	c.mu.Unlock()
	return float64(time.Since(created)) / float64(time.Millisecond)
}

// snapshot is the serializable form of Context produced by ToMapping.
type snapshot struct {
	WorkflowID         string         `json:"workflow_id"`
	ConstitutionalHash string         `json:"constitutional_hash"`
	TenantID           string         `json:"tenant_id,omitempty"`
	CorrelationID      string         `json:"correlation_id,omitempty"`
	ParentWorkflowID   string         `json:"parent_workflow_id,omitempty"`
	TraceID            string         `json:"trace_id,omitempty"`
	StepResults        map[string]any `json:"step_results"`
	Errors             []string       `json:"errors"`
	Metadata           map[string]any `json:"metadata"`
	CreatedAt          string         `json:"created_at"`
	ElapsedMS          float64        `json:"elapsed_ms"`
}

// ToMapping serializes the context to a stable-keyed mapping. ElapsedMS is
// computed at call time and is therefore excluded from the
// ToMapping/FromMapping round-trip identity law.
func (c *Context) ToMapping() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]any{
		"workflow_id":         c.WorkflowID,
		"constitutional_hash": c.ConstitutionalHash,
		"tenant_id":           c.TenantID,
		"correlation_id":      c.CorrelationID,
		"parent_workflow_id":  c.ParentWorkflowID,
		"trace_id":            c.TraceID,
		"step_results":        copyMap(c.StepResults),
		"errors":              append([]string{}, c.Errors...),
		"metadata":            copyMap(c.Metadata),
		"created_at":          c.CreatedAt.Format(time.RFC3339Nano),
		"elapsed_ms":          float64(time.Since(c.CreatedAt)) / float64(time.Millisecond),
	}
}

// ContextFromMapping reconstructs a Context from a mapping produced by
// ToMapping. Unknown or absent keys take their zero values.
func ContextFromMapping(data map[string]any) (*Context, error) {
	c := &Context{
		StepResults: make(map[string]any),
		Metadata:    make(map[string]any),
		CreatedAt:   time.Now().UTC(),
	}
	if v, ok := data["workflow_id"].(string); ok {
		c.WorkflowID = v
	}
	if v, ok := data["constitutional_hash"].(string); ok {
		c.ConstitutionalHash = v
	}
	if v, ok := data["tenant_id"].(string); ok {
		c.TenantID = v
	}
	if v, ok := data["correlation_id"].(string); ok {
		c.CorrelationID = v
	}
	if v, ok := data["parent_workflow_id"].(string); ok {
		c.ParentWorkflowID = v
	}
	if v, ok := data["trace_id"].(string); ok {
		c.TraceID = v
	}
	if v, ok := data["step_results"].(map[string]any); ok {
		c.StepResults = copyMap(v)
	}
	if v, ok := data["errors"].([]string); ok {
		c.Errors = append([]string{}, v...)
	}
	if v, ok := data["metadata"].(map[string]any); ok {
		c.Metadata = copyMap(v)
	}
	if v, ok := data["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			c.CreatedAt = t
		}
	}
	return c, nil
}

// CreateChild produces a child context for sub-workflow execution. It
// inherits the governance hash, tenant identifier, correlation identifier,
// and a copy of the metadata map from the parent. Per the original
// implementation, the trace identifier is also inherited rather than
// regenerated, so a parent/child chain shares one trace.
func (c *Context) CreateChild(childWorkflowID string) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := childWorkflowID
	if id == "" {
		id = uuid.NewString()
	}
	return &Context{
		WorkflowID:         id,
		ConstitutionalHash: c.ConstitutionalHash,
		TenantID:           c.TenantID,
		CorrelationID:      c.CorrelationID,
		ParentWorkflowID:   c.WorkflowID,
		TraceID:            c.TraceID,
		StepResults:        make(map[string]any),
		Metadata:           copyMap(c.Metadata),
		CreatedAt:          time.Now().UTC(),
	}
}

// MergeChildResults copies a child context's step results (optionally under
// a key prefix) and appends its errors onto this context.
func (c *Context) MergeChildResults(child *Context, prefix string) {
	child.mu.Lock()
	childResults := copyMap(child.StepResults)
	childErrors := append([]string{}, child.Errors...)
	child.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for name, result := range childResults {
		key := name
		if prefix != "" {
			key = prefix + name
		}
		c.StepResults[key] = result
	}
	c.Errors = append(c.Errors, childErrors...)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
