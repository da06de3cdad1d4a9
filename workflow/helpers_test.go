package workflow

import (
	"context"
	"errors"
	"fmt"
)

const testHash = "deadbeefdeadbeef"

var errBoom = errors.New("boom")

// fakeActivities is a configurable Activities test double. Its zero value
// validates a hash only when provided == expected, denies every policy
// (policyAllows is false), and records each audit as "workflowID:eventType".
type fakeActivities struct {
	NoopActivities

	denyHash     bool
	policyAllows bool
	policyErr    error
	auditErr     error
	audits       []string
}

func (f *fakeActivities) ValidateConstitutionalHash(_ context.Context, _, provided, expected string) (HashValidation, error) {
	if f.denyHash {
		return HashValidation{IsValid: false, Errors: []string{"denied by test double"}}, nil
	}
	if provided != expected {
		return HashValidation{IsValid: false, Errors: []string{"mismatch"}}, nil
	}
	return HashValidation{IsValid: true}, nil
}

func (f *fakeActivities) EvaluatePolicy(_ context.Context, _, _ string, _ map[string]any) (PolicyDecision, error) {
	if f.policyErr != nil {
		return PolicyDecision{}, f.policyErr
	}
	return PolicyDecision{Allowed: f.policyAllows}, nil
}

func (f *fakeActivities) RecordAudit(_ context.Context, workflowID, eventType string, _ map[string]any) (string, error) {
	if f.auditErr != nil {
		return "", f.auditErr
	}
	id := fmt.Sprintf("%s:%s", workflowID, eventType)
	f.audits = append(f.audits, id)
	return id, nil
}

// succeedStep builds a Step whose Execute always succeeds with output,
// with a one-attempt retry budget and no timeout.
func succeedStep(name string, output any) *Step {
	return &Step{
		Name:        name,
		MaxAttempts: 1,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			return output, nil
		},
	}
}

// failStep builds a Step whose Execute always fails with errBoom.
func failStep(name string) *Step {
	return &Step{
		Name:        name,
		MaxAttempts: 1,
		Execute: func(ctx context.Context, input map[string]any) (any, error) {
			return nil, errBoom
		},
	}
}

// compensationOf builds a Compensation that records its invocation into
// calls (shared across the test) and reports ok.
func compensationOf(name string, ok bool, calls *[]string) *Compensation {
	return &Compensation{
		Name:        name,
		MaxAttempts: 1,
		Execute: func(ctx context.Context, input map[string]any) (bool, error) {
			*calls = append(*calls, name)
			return ok, nil
		},
	}
}
