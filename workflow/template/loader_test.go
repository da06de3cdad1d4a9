package template

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
name: onboard_user
version: "1"
constitutional_hash: abc123
workflow_type: sequential
steps:
  - name: create_account
    action: create_account
  - name: send_welcome
    action: send_welcome
    depends_on: [create_account]
config:
  fail_open: false
`

func writeTempTemplate(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "template.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp template: %v", err)
	}
	return path
}

func TestLoader_Load(t *testing.T) {
	path := writeTempTemplate(t, sampleYAML)
	loader := NewLoader()

	tmpl, err := loader.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tmpl.Name != "onboard_user" {
		t.Errorf("Name = %q, want onboard_user", tmpl.Name)
	}
	if len(tmpl.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(tmpl.Steps))
	}
	if tmpl.Steps[1].DependsOn[0] != "create_account" {
		t.Errorf("Steps[1].DependsOn = %v", tmpl.Steps[1].DependsOn)
	}
}

func TestLoader_Load_Caches(t *testing.T) {
	path := writeTempTemplate(t, sampleYAML)
	loader := NewLoader()

	if _, err := loader.Load(path); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if err := os.WriteFile(path, []byte("name: changed\n"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	tmpl, err := loader.Load(path)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if tmpl.Name != "onboard_user" {
		t.Errorf("expected cached value, got Name = %q", tmpl.Name)
	}
}

func TestLoader_Invalidate(t *testing.T) {
	path := writeTempTemplate(t, sampleYAML)
	loader := NewLoader()

	if _, err := loader.Load(path); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if err := os.WriteFile(path, []byte("name: changed\n"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	loader.Invalidate(path)

	tmpl, err := loader.Load(path)
	if err != nil {
		t.Fatalf("reload after invalidate: %v", err)
	}
	if tmpl.Name != "changed" {
		t.Errorf("Name = %q, want changed after invalidate", tmpl.Name)
	}
}

func TestLoader_Load_MissingFile(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load("/nonexistent/path/template.yaml"); err == nil {
		t.Fatal("expected error loading missing file")
	}
}
