// Command workflowctl loads a workflow template, validates it, and
// dry-run compiles it against a no-op action registry to confirm every
// step's action name resolves and the graph is well-formed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	wf "github.com/cgov/workflow/workflow"
	"github.com/cgov/workflow/workflow/template"
)

func main() {
	var (
		path   = flag.String("template", "", "path to a workflow template YAML file")
		hash   = flag.String("hash", "", "expected constitutional hash; empty skips the hash check")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("workflowctl: -template is required")
	}

	if err := run(*path, *hash); err != nil {
		log.Fatalf("workflowctl: %v", err)
	}
}

func run(path, expectedHash string) error {
	loader := template.NewLoader()
	tmpl, err := loader.Load(path)
	if err != nil {
		return err
	}

	if errs := tmpl.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("template %q failed validation", tmpl.Name)
	}

	if expectedHash != "" {
		if err := tmpl.ValidateHash(expectedHash); err != nil {
			return err
		}
	}

	registry := template.NewRegistry(wf.NoopActivities{})
	for _, step := range tmpl.Steps {
		registry.RegisterAction(step.Action, dryRunAction(step.Action))
		if step.CompensateAction != "" {
			registry.RegisterAction(step.CompensateAction, dryRunAction(step.CompensateAction))
		}
	}

	runnable, err := registry.Compile(tmpl)
	if err != nil {
		return err
	}

	fmt.Printf("template %q (%s): compiled %T with %d step(s)\n", tmpl.Name, tmpl.WorkflowType, runnable, len(tmpl.Steps))
	return nil
}

func dryRunAction(name string) template.ActivityFunc {
	return func(_ context.Context, input map[string]any) (any, error) {
		return map[string]any{"action": name, "dry_run": true, "input": input}, nil
	}
}
