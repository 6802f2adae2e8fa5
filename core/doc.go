// Package core provides the conversation primitives shared by the turn loop,
// the model adapters and the tool registry:
//
//   - Role (system, user, assistant, tool)
//   - Message (one entry of the append-only conversation history)
//   - ToolCall (a model-issued request to invoke a named tool)
//
// The package has no dependencies on models or tools so that both sides of the
// loop can speak the same vocabulary without import cycles.
package core
