// Package template decodes declarative workflow definitions and compiles
// them into executable graphs backed by the workflow package's engines.
package template

import (
	"fmt"
)

// Template is the declarative, versioned description of a workflow.
type Template struct {
	Name                string            `yaml:"name"`
	Version             string            `yaml:"version"`
	ConstitutionalHash  string            `yaml:"constitutional_hash"`
	WorkflowType        string            `yaml:"workflow_type"`
	Steps               []TemplateStep    `yaml:"steps"`
	Config              TemplateConfig    `yaml:"config"`
}

// TemplateStep describes one step in a declarative workflow.
type TemplateStep struct {
	Name            string         `yaml:"name"`
	Action          string         `yaml:"action"`
	DependsOn       []string       `yaml:"depends_on"`
	Critical        bool           `yaml:"critical"`
	Optional        bool           `yaml:"optional"`
	TimeoutSeconds  int            `yaml:"timeout_seconds"`
	MaxAttempts     int            `yaml:"max_attempts"`
	CompensateAction string        `yaml:"compensate_action"`
	Params          map[string]any `yaml:"params"`
}

// TemplateConfig carries workflow-type-specific knobs.
type TemplateConfig struct {
	ParallelismLimit int    `yaml:"parallelism_limit"`
	MaxIterations    int    `yaml:"max_iterations"`
	StartNode        string `yaml:"start_node"`
	PolicyPath       string `yaml:"policy_path"`
	Strict           bool   `yaml:"strict"`
	FailOpen         bool   `yaml:"fail_open"`
	AllowReentry     bool   `yaml:"allow_reentry"`
}

// Workflow types a Template's workflow_type field may select.
const (
	TypeSequential = "sequential"
	TypeParallel   = "parallel"
	TypeSaga       = "saga"
	TypeDAG        = "dag"
	TypeCyclic     = "cyclic"
)

// Validate checks internal consistency without resolving action names
// against a Registry (see Registry.Compile for that check).
func (t Template) Validate() []error {
	var errs []error
	if t.Name == "" {
		errs = append(errs, fmt.Errorf("template: name is required"))
	}
	if len(t.Steps) == 0 {
		errs = append(errs, fmt.Errorf("template: at least one step is required"))
	}
	seen := make(map[string]bool, len(t.Steps))
	for i, step := range t.Steps {
		if step.Name == "" {
			errs = append(errs, fmt.Errorf("template: step[%d] has no name", i))
			continue
		}
		if seen[step.Name] {
			errs = append(errs, fmt.Errorf("template: duplicate step name %q", step.Name))
		}
		seen[step.Name] = true
		if step.Action == "" {
			errs = append(errs, fmt.Errorf("template: step %q has no action", step.Name))
		}
	}
	switch t.WorkflowType {
	case TypeSequential, TypeParallel, TypeSaga, TypeDAG:
		// no extra requirements
	case TypeCyclic:
		if t.Config.StartNode == "" {
			errs = append(errs, fmt.Errorf("template: cyclic workflow requires config.start_node"))
		}
	case "":
		errs = append(errs, fmt.Errorf("template: workflow_type is required"))
	default:
		errs = append(errs, fmt.Errorf("template: unknown workflow_type %q", t.WorkflowType))
	}
	if t.WorkflowType == TypeDAG {
		for _, step := range t.Steps {
			for _, dep := range step.DependsOn {
				if !seen[dep] {
					errs = append(errs, fmt.Errorf("template: step %q depends on unknown step %q", step.Name, dep))
				}
			}
		}
	}
	return errs
}

// ValidateHash checks the template's declared hash against the
// runtime-injected expected value. A mismatch is a validation error, not
// a panic.
func (t Template) ValidateHash(expected string) error {
	if t.ConstitutionalHash != expected {
		return fmt.Errorf("template: constitutional hash %q does not match expected %q", t.ConstitutionalHash, expected)
	}
	return nil
}
