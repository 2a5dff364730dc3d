// Package provider abstracts streaming chat-completion backends. A provider
// converts the runtime's conversation shape into its SDK's wire format,
// streams the response, and surfaces every increment through a DeltaFunc
// callback.
package provider

import (
	"context"

	"github.com/escape-velocity-ventures/orbit/pkg/session"
	"github.com/escape-velocity-ventures/orbit/pkg/transport"
)

// FinishReason reports why a model turn stopped.
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// ToolCallDelta is one streamed fragment of a tool invocation. The ID and
// Name typically arrive only on the first fragment of a call; later
// fragments carry the positional Index and a slice of the arguments JSON.
type ToolCallDelta struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// Delta is a single streamed increment. At most one of Text and ToolCall is
// set; FinishReason is set on the terminal delta of the turn.
type Delta struct {
	Text         string
	ToolCall     *ToolCallDelta
	FinishReason FinishReason
}

// DeltaFunc receives stream increments in order. Returning an error aborts
// the stream.
type DeltaFunc func(Delta) error

// ToolSpec advertises one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Request is a single model turn over a session's conversation.
type Request struct {
	Model       string
	System      string
	Messages    []session.Message
	Tools       []ToolSpec
	EffortLevel string
	MaxTokens   int
	Temperature float64
}

// Provider streams one model turn. Stream blocks until the turn finishes,
// the context is cancelled, or the callback aborts.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request, fn DeltaFunc) error
}

// SpecsFromTools converts router tool listings into provider tool specs.
func SpecsFromTools(infos []transport.ToolInfo) []ToolSpec {
	specs := make([]ToolSpec, 0, len(infos))
	for _, info := range infos {
		specs = append(specs, ToolSpec{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
		})
	}
	return specs
}

// resolveModel maps an effort level to a model name, falling back to the
// request model when the level has no mapping.
func resolveModel(req Request, effortModels map[string]string) string {
	if req.EffortLevel != "" {
		if model, ok := effortModels[req.EffortLevel]; ok && model != "" {
			return model
		}
	}
	return req.Model
}
