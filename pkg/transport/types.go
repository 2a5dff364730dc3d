// Package transport routes tool calls to heterogeneous backends: the
// in-process tool registry, HTTP tool services, and one-shot stdio
// subprocesses speaking Content-Length framed JSON-RPC. All transport and
// tool failures normalize into a ToolResult; the router never raises for a
// failed call.
package transport

import "fmt"

// EndpointKind discriminates the closed set of transport backends.
type EndpointKind string

const (
	KindInline     EndpointKind = "inline"
	KindHTTP       EndpointKind = "http"
	KindSubprocess EndpointKind = "subprocess"
)

// Endpoint is a configured backend capable of executing tools whose names
// share ToolPrefix. Exactly one enabled endpoint should claim a prefix;
// the router resolves first-match in registration order and warns on
// overlap rather than enforcing disjointness.
type Endpoint struct {
	Name       string       `json:"name" mapstructure:"name"`
	Kind       EndpointKind `json:"kind" mapstructure:"kind"`
	Address    string       `json:"address,omitempty" mapstructure:"address"`
	Command    string       `json:"command,omitempty" mapstructure:"command"`
	Args       []string     `json:"args,omitempty" mapstructure:"args"`
	ToolPrefix string       `json:"tool_prefix" mapstructure:"tool_prefix"`
	Enabled    bool         `json:"enabled" mapstructure:"enabled"`
}

// Validate checks the endpoint's kind-specific fields.
func (e Endpoint) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint name is required")
	}
	switch e.Kind {
	case KindInline:
	case KindHTTP:
		if e.Address == "" {
			return fmt.Errorf("endpoint %s: http endpoints require an address", e.Name)
		}
	case KindSubprocess:
		if e.Command == "" {
			return fmt.Errorf("endpoint %s: subprocess endpoints require a command", e.Name)
		}
	default:
		return fmt.Errorf("endpoint %s: unknown kind %q", e.Name, e.Kind)
	}
	return nil
}

// ToolResult is the single normalized result shape for every dispatch. A
// failed call is data fed back to the model, never an error raised through
// the orchestration loop.
type ToolResult struct {
	Success      bool        `json:"success"`
	Value        interface{} `json:"value,omitempty"`
	ErrorMessage string      `json:"error,omitempty"`
}

// Failure builds a failed ToolResult from a formatted message.
func Failure(format string, args ...interface{}) ToolResult {
	return ToolResult{Success: false, ErrorMessage: fmt.Sprintf(format, args...)}
}

// ToolInfo describes a remotely or locally discoverable tool.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
}
