package workflow

import (
	"context"
)

// ConstitutionalValidationWorkflow runs the five-stage governance pipeline
// used to admit a request at a trust boundary: hash check, integrity
// check, an optional policy check, a compliance check, and a best-effort
// audit record. Strict mode short-circuits on a hash or integrity failure
// before policy/compliance ever run; compliance's pass threshold is 1.0 in
// strict mode and 0.8 otherwise.
type ConstitutionalValidationWorkflow struct {
	base       *BaseWorkflow
	Strict     bool
	PolicyPath string // empty disables the policy_check stage
}

// NewConstitutionalValidationWorkflow constructs the workflow. policyPath
// may be empty to skip policy evaluation entirely (e.g. no OPA client
// configured), matching the original's "skipped if no policy client"
// behavior.
func NewConstitutionalValidationWorkflow(name string, activities Activities, constitutionalHash string, strict bool, policyPath string, opts ...Option) *ConstitutionalValidationWorkflow {
	return &ConstitutionalValidationWorkflow{
		base:       NewBaseWorkflow(name, activities, constitutionalHash, opts...),
		Strict:     strict,
		PolicyPath: policyPath,
	}
}

type complianceCheck struct {
	Name   string
	Passed bool
}

// Run executes the five stages in order against input, which must carry a
// "constitutional_hash" and "payload" entry.
func (w *ConstitutionalValidationWorkflow) Run(ctx context.Context, workflowID string, input map[string]any) Result {
	w.base.SetExecutor(func(ctx context.Context, wctx *Context, input map[string]any) (Result, error) {
		provided, _ := input["constitutional_hash"].(string)
		payload, _ := input["payload"].(map[string]any)

		hashValidation, err := w.base.Activities.ValidateConstitutionalHash(ctx, workflowID, provided, w.base.ConstitutionalHash)
		hashOK := err == nil && hashValidation.IsValid
		wctx.SetStepResult("hash_check", hashOK)
		if !hashOK {
			wctx.AddError("hash_check failed")
			if w.Strict {
				return w.deny(ctx, wctx, "hash_check"), nil
			}
		}

		integrityOK := hashOK && payload != nil
		wctx.SetStepResult("integrity_check", integrityOK)
		if !integrityOK {
			wctx.AddError("integrity_check failed")
			if w.Strict {
				return w.deny(ctx, wctx, "integrity_check"), nil
			}
		}

		policyOK := true
		if w.PolicyPath != "" {
			decision, err := w.base.Activities.EvaluatePolicy(ctx, workflowID, w.PolicyPath, payload)
			policyOK = err == nil && decision.Allowed
			wctx.SetStepResult("policy_check", policyOK)
			if !policyOK {
				wctx.AddError("policy_check failed")
			}
		} else {
			wctx.SetStepResult("policy_check", "skipped")
		}

		checks := []complianceCheck{
			{Name: "hash_check", Passed: hashOK},
			{Name: "integrity_check", Passed: integrityOK},
		}
		if w.PolicyPath != "" {
			checks = append(checks, complianceCheck{Name: "policy_check", Passed: policyOK})
		}
		score := complianceScore(checks)
		threshold := 0.8
		if w.Strict {
			threshold = 1.0
		}
		compliant := score >= threshold
		wctx.SetStepResult("compliance_check", map[string]any{"score": score, "threshold": threshold, "compliant": compliant})

		auditID, _ := w.base.Activities.RecordAudit(ctx, workflowID, "constitutional_validation", map[string]any{
			"hash_check":       hashOK,
			"integrity_check":  integrityOK,
			"policy_check":     policyOK,
			"compliance_score": score,
			"compliant":        compliant,
		})
		wctx.SetStepResult("audit_record", auditID)

		if !compliant {
			r := FailureResult(workflowID, w.base.ConstitutionalHash, wctx.Errors, wctx.ElapsedMS(), nil, []string{"compliance_check"}, nil)
			r.AuditID = auditID
			return r, nil
		}

		result := w.base.Complete(ctx, wctx.StepResults)
		result.AuditID = auditID
		return result, nil
	})
	return w.base.Run(ctx, workflowID, input)
}

func (w *ConstitutionalValidationWorkflow) deny(ctx context.Context, wctx *Context, failedStage string) Result {
	auditID, _ := w.base.Activities.RecordAudit(ctx, wctx.WorkflowID, "constitutional_validation_denied", map[string]any{
		"failed_stage": failedStage,
	})
	r := FailureResult(wctx.WorkflowID, w.base.ConstitutionalHash, wctx.Errors, wctx.ElapsedMS(), nil, []string{failedStage}, nil)
	r.AuditID = auditID
	return r
}

func complianceScore(checks []complianceCheck) float64 {
	if len(checks) == 0 {
		return 1.0
	}
	passed := 0
	for _, c := range checks {
		if c.Passed {
			passed++
		}
	}
	return float64(passed) / float64(len(checks))
}

// Context exposes the in-flight workflow context (valid during/after Run).
func (w *ConstitutionalValidationWorkflow) Context() *Context { return w.base.context }
