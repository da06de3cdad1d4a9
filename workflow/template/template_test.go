package template

import "testing"

func TestTemplate_Validate_RequiresName(t *testing.T) {
	tmpl := Template{WorkflowType: TypeSequential, Steps: []TemplateStep{{Name: "a", Action: "do_a"}}}
	errs := tmpl.Validate()
	if len(errs) == 0 {
		t.Fatal("expected validation error for missing name")
	}
}

func TestTemplate_Validate_RequiresSteps(t *testing.T) {
	tmpl := Template{Name: "t", WorkflowType: TypeSequential}
	errs := tmpl.Validate()
	found := false
	for _, e := range errs {
		if e.Error() == "template: at least one step is required" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing-steps error, got %v", errs)
	}
}

func TestTemplate_Validate_DuplicateStepNames(t *testing.T) {
	tmpl := Template{
		Name:         "t",
		WorkflowType: TypeSequential,
		Steps: []TemplateStep{
			{Name: "a", Action: "do_a"},
			{Name: "a", Action: "do_b"},
		},
	}
	errs := tmpl.Validate()
	if len(errs) == 0 {
		t.Fatal("expected duplicate step name error")
	}
}

func TestTemplate_Validate_CyclicRequiresStartNode(t *testing.T) {
	tmpl := Template{
		Name:         "t",
		WorkflowType: TypeCyclic,
		Steps:        []TemplateStep{{Name: "a", Action: "do_a"}},
	}
	errs := tmpl.Validate()
	if len(errs) == 0 {
		t.Fatal("expected missing start_node error")
	}
}

func TestTemplate_Validate_DAGUnknownDependency(t *testing.T) {
	tmpl := Template{
		Name:         "t",
		WorkflowType: TypeDAG,
		Steps: []TemplateStep{
			{Name: "a", Action: "do_a", DependsOn: []string{"ghost"}},
		},
	}
	errs := tmpl.Validate()
	if len(errs) == 0 {
		t.Fatal("expected unknown-dependency error")
	}
}

func TestTemplate_Validate_Valid(t *testing.T) {
	tmpl := Template{
		Name:         "t",
		WorkflowType: TypeDAG,
		Steps: []TemplateStep{
			{Name: "a", Action: "do_a"},
			{Name: "b", Action: "do_b", DependsOn: []string{"a"}},
		},
	}
	if errs := tmpl.Validate(); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestTemplate_ValidateHash(t *testing.T) {
	tmpl := Template{ConstitutionalHash: "abc123"}
	if err := tmpl.ValidateHash("abc123"); err != nil {
		t.Fatalf("expected matching hash to pass, got %v", err)
	}
	if err := tmpl.ValidateHash("different"); err == nil {
		t.Fatal("expected mismatched hash to fail")
	}
}
