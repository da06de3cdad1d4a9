package llmagent

import (
	"context"
	"fmt"
	"strings"
)

// Tool is the subset of tool.Tool that Agent needs, avoiding an import
// cycle between llmagent and its tool subpackage.
type Tool interface {
	Name() string
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Agent wraps a ChatModel as a named, capability-tagged agent that a
// workflow.Activities implementation can dispatch ExecuteAgentTask calls
// to. TaskPrompts maps a task name to the prompt template sent as the sole
// user message; unregistered task names are rejected.
//
// When Tools is non-empty and the model responds with tool calls, Execute
// runs them and feeds the results back to the model for up to
// MaxToolIterations rounds before returning the final response.
type Agent struct {
	ID                string
	Model             ChatModel
	Capabilities      []string
	SystemPrompt      string
	TaskPrompts       map[string]string
	Tools             map[string]Tool
	ToolSpecs         []ToolSpec
	MaxToolIterations int
}

// Execute runs the named task against payload, formatting the task's
// prompt template with payload values before sending it to the model.
func (a *Agent) Execute(ctx context.Context, taskName string, payload map[string]any) (any, error) {
	template, ok := a.TaskPrompts[taskName]
	if !ok {
		return nil, fmt.Errorf("llmagent: agent %s has no prompt for task %q", a.ID, taskName)
	}

	messages := []Message{}
	if a.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: a.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: renderPrompt(template, payload)})

	out, err := a.runWithTools(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("llmagent: agent %s task %s: %w", a.ID, taskName, err)
	}
	return map[string]any{"text": out.Text, "tool_calls": out.ToolCalls}, nil
}

// runWithTools calls the model, and if it returns tool calls the agent has
// a registered Tool for, executes them and loops back with the results as
// additional user turns. A model response with no resolvable tool calls,
// or MaxToolIterations rounds elapsed, ends the loop.
func (a *Agent) runWithTools(ctx context.Context, messages []Message) (ChatOut, error) {
	maxIterations := a.MaxToolIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}
	if len(a.Tools) == 0 {
		maxIterations = 1
	}

	var out ChatOut
	for i := 0; i < maxIterations; i++ {
		var err error
		out, err = a.Model.Chat(ctx, messages, a.ToolSpecs)
		if err != nil {
			return ChatOut{}, err
		}
		if len(out.ToolCalls) == 0 {
			return out, nil
		}

		resolved := false
		for _, call := range out.ToolCalls {
			t, ok := a.Tools[call.Name]
			if !ok {
				continue
			}
			resolved = true
			result, err := t.Call(ctx, call.Input)
			if err != nil {
				messages = append(messages, Message{Role: RoleUser, Content: fmt.Sprintf("tool %s failed: %v", call.Name, err)})
				continue
			}
			messages = append(messages, Message{Role: RoleUser, Content: fmt.Sprintf("tool %s result: %v", call.Name, result)})
		}
		if !resolved {
			return out, nil
		}
	}
	return out, nil
}

// renderPrompt performs a minimal {{key}} substitution over template using
// payload's string-valued entries. It is intentionally simple: agents that
// need richer templating should pre-render the prompt before dispatch.
func renderPrompt(template string, payload map[string]any) string {
	result := template
	for k, v := range payload {
		placeholder := "{{" + k + "}}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprintf("%v", v))
	}
	return result
}

// Registry dispatches ExecuteAgentTask/ListAgents calls across a fixed set
// of named agents, suitable for embedding in a workflow.Activities
// implementation.
type Registry struct {
	agents map[string]*Agent
}

// NewRegistry builds a registry from the given agents, keyed by ID.
func NewRegistry(agents ...*Agent) *Registry {
	r := &Registry{agents: make(map[string]*Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.ID] = a
	}
	return r
}

func (r *Registry) ExecuteAgentTask(ctx context.Context, agentID, taskName string, payload map[string]any) (any, error) {
	agent, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("llmagent: unknown agent %q", agentID)
	}
	return agent.Execute(ctx, taskName, payload)
}

func (r *Registry) ListAgents(capabilities []string, status string) []Agent {
	var out []Agent
	for _, a := range r.agents {
		if !hasAllCapabilities(a.Capabilities, capabilities) {
			continue
		}
		out = append(out, *a)
	}
	_ = status // all registered agents are considered available
	return out
}

func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}
