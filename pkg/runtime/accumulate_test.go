package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escape-velocity-ventures/orbit/pkg/provider"
)

func TestAccumulatorConcatenatesByIndex(t *testing.T) {
	acc := newToolCallAccumulator()

	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ID: "call_1", Name: "search"}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ArgumentsFragment: `{"q":`}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ArgumentsFragment: `"golang"}`}))

	reqs := acc.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "call_1", reqs[0].ID)
	assert.Equal(t, "search", reqs[0].Name)
	assert.Equal(t, `{"q":"golang"}`, reqs[0].ArgumentsJSON)
}

func TestAccumulatorInterleavedCalls(t *testing.T) {
	acc := newToolCallAccumulator()

	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ID: "call_a", Name: "first"}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 1, ID: "call_b", Name: "second"}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 1, ArgumentsFragment: `{"b":`}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ArgumentsFragment: `{"a":1}`}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 1, ArgumentsFragment: `2}`}))

	reqs := acc.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, `{"a":1}`, reqs[0].ArgumentsJSON)
	assert.Equal(t, `{"b":2}`, reqs[1].ArgumentsJSON)
}

func TestAccumulatorConcatenatesNameFragments(t *testing.T) {
	acc := newToolCallAccumulator()

	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ID: "call_1", Name: "ba"}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, Name: "sh"}))
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ArgumentsFragment: `{"command":"echo hi"}`}))

	reqs := acc.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "bash", reqs[0].Name)
}

func TestAccumulatorRejectsOrphanFragment(t *testing.T) {
	acc := newToolCallAccumulator()
	err := acc.add(&provider.ToolCallDelta{Index: 3, ArgumentsFragment: `{}`})
	assert.Error(t, err)
	assert.True(t, acc.empty())
}

func TestAccumulatorEmptyArguments(t *testing.T) {
	acc := newToolCallAccumulator()
	require.NoError(t, acc.add(&provider.ToolCallDelta{Index: 0, ID: "call_1", Name: "ping"}))

	reqs := acc.requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].ArgumentsJSON)
}
