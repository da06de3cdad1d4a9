package workflow

import "context"

// HashValidation is the result of Activities.ValidateConstitutionalHash.
type HashValidation struct {
	IsValid bool
	Errors  []string
}

// PolicyDecision is the result of Activities.EvaluatePolicy.
type PolicyDecision struct {
	Allowed bool
	Reasons []string
	Details map[string]any
}

// AgentInfo describes one entry returned by Activities.ListAgents.
type AgentInfo struct {
	AgentID      string
	Capabilities []string
	Status       string
}

// Activities is the minimum capability set the engine requires from the
// outside world. It is the engine's only way to touch external systems:
// nothing in this module dials a database, calls an LLM, or talks HTTP
// directly. All operations are asynchronous (they take a context.Context
// and may block). The engine never assumes idempotency on forward-direction
// activities; it requires idempotency on compensation activities only,
// which is why compensations are a property of Step/Compensation rather
// than of this interface.
type Activities interface {
	// ValidateConstitutionalHash checks a provided governance hash against
	// the expected value for workflowID.
	ValidateConstitutionalHash(ctx context.Context, workflowID, provided, expected string) (HashValidation, error)

	// EvaluatePolicy evaluates input against the named policy.
	EvaluatePolicy(ctx context.Context, workflowID, policyPath string, input map[string]any) (PolicyDecision, error)

	// RecordAudit records an audit event and returns an opaque audit
	// identifier. Implementations must be idempotent for a given
	// (workflowID, eventType, hash-of-eventData) tuple.
	RecordAudit(ctx context.Context, workflowID, eventType string, eventData map[string]any) (string, error)

	// ExecuteAgentTask dispatches a task to an external agent.
	ExecuteAgentTask(ctx context.Context, agentID, taskName string, payload map[string]any) (any, error)

	// ListAgents returns agents matching the given capability filter and
	// status filter (empty strings/slices mean "no filter").
	ListAgents(ctx context.Context, capabilities []string, status string) ([]AgentInfo, error)
}

// NoopActivities is a minimal Activities implementation useful for tests
// and for templates that never touch governance/audit/agent concerns. Hash
// validation always succeeds when provided == expected.
type NoopActivities struct{}

func (NoopActivities) ValidateConstitutionalHash(_ context.Context, _, provided, expected string) (HashValidation, error) {
	if provided == expected {
		return HashValidation{IsValid: true}, nil
	}
	return HashValidation{IsValid: false, Errors: []string{"constitutional hash mismatch"}}, nil
}

func (NoopActivities) EvaluatePolicy(_ context.Context, _, _ string, _ map[string]any) (PolicyDecision, error) {
	return PolicyDecision{Allowed: true}, nil
}

func (NoopActivities) RecordAudit(_ context.Context, _, _ string, _ map[string]any) (string, error) {
	return "", nil
}

func (NoopActivities) ExecuteAgentTask(_ context.Context, _, _ string, _ map[string]any) (any, error) {
	return nil, nil
}

func (NoopActivities) ListAgents(_ context.Context, _ []string, _ string) ([]AgentInfo, error) {
	return nil, nil
}
