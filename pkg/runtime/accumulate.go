package runtime

import (
	"fmt"

	"github.com/escape-velocity-ventures/orbit/pkg/provider"
	"github.com/escape-velocity-ventures/orbit/pkg/session"
)

// toolCallAccumulator assembles streamed tool-call fragments into complete
// invocations. Fragments carry the call ID only on their first delta, so
// later fragments are attributed through the positional index.
type toolCallAccumulator struct {
	calls   map[string]*pendingCall
	byIndex map[int]string
	order   []string
}

type pendingCall struct {
	id   string
	name string
	args []byte
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{
		calls:   make(map[string]*pendingCall),
		byIndex: make(map[int]string),
	}
}

// add folds one fragment into the accumulator.
func (a *toolCallAccumulator) add(delta *provider.ToolCallDelta) error {
	id := delta.ID
	if id == "" {
		mapped, ok := a.byIndex[delta.Index]
		if !ok {
			return fmt.Errorf("tool call fragment at index %d arrived before its opening fragment", delta.Index)
		}
		id = mapped
	}

	call, ok := a.calls[id]
	if !ok {
		call = &pendingCall{id: id}
		a.calls[id] = call
		a.byIndex[delta.Index] = id
		a.order = append(a.order, id)
	}

	// Names, like arguments, may arrive split across deltas.
	if delta.Name != "" {
		call.name += delta.Name
	}
	if delta.ArgumentsFragment != "" {
		call.args = append(call.args, delta.ArgumentsFragment...)
	}
	return nil
}

func (a *toolCallAccumulator) empty() bool {
	return len(a.order) == 0
}

// requests returns the completed calls in stream order.
func (a *toolCallAccumulator) requests() []session.ToolCallRequest {
	reqs := make([]session.ToolCallRequest, 0, len(a.order))
	for _, id := range a.order {
		call := a.calls[id]
		reqs = append(reqs, session.ToolCallRequest{
			ID:            call.id,
			Name:          call.name,
			ArgumentsJSON: string(call.args),
		})
	}
	return reqs
}
