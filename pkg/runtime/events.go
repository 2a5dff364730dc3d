// Package runtime drives the agent orchestration loop: stream a model turn,
// accumulate tool-call fragments, dispatch the calls through the transport
// router, feed the results back, and repeat until the model stops asking for
// tools or the turn cap is hit.
package runtime

import "github.com/escape-velocity-ventures/orbit/pkg/transport"

// EventType discriminates the events emitted over a query's stream.
type EventType string

const (
	// EventChunk carries a fragment of assistant text.
	EventChunk EventType = "chunk"
	// EventToolCall announces a fully accumulated tool invocation about to
	// be dispatched.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries the normalized outcome of a dispatch.
	EventToolResult EventType = "tool_result"
	// EventComplete is the terminal event of a successful query.
	EventComplete EventType = "complete"
	// EventError is the terminal event of a failed query.
	EventError EventType = "error"
)

// ToolCallInfo identifies one tool invocation within a query.
type ToolCallInfo struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Event is one item on a query's event stream. Exactly one of the payload
// fields matching Type is populated.
type Event struct {
	Type       EventType             `json:"type"`
	SessionID  string                `json:"session_id"`
	Text       string                `json:"text,omitempty"`
	ToolCall   *ToolCallInfo         `json:"tool_call,omitempty"`
	ToolResult *transport.ToolResult `json:"tool_result,omitempty"`
	Error      string                `json:"error,omitempty"`
}
