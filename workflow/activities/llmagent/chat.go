// Package llmagent adapts third-party LLM SDKs into a uniform ChatModel,
// and exposes an Agent that backs workflow.Activities.ExecuteAgentTask with
// a real model call instead of a stub.
package llmagent

import "context"

// ChatModel is the common surface every provider adapter implements.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is one turn of a conversation sent to a ChatModel.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut is a ChatModel's response: free text, tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is one invocation the model requested.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}
