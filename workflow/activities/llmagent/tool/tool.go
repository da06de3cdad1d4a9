// Package tool lets an Agent execute tool calls a ChatModel requests,
// instead of returning them to the caller unresolved.
package tool

import "context"

// Tool is something an agent can invoke in response to a model's tool call.
type Tool interface {
	// Name is the identifier the model references in a ToolCall.
	Name() string

	// Call executes the tool against input and returns structured output.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}
