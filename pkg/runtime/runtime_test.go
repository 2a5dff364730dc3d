package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escape-velocity-ventures/orbit/pkg/provider"
	"github.com/escape-velocity-ventures/orbit/pkg/session"
	"github.com/escape-velocity-ventures/orbit/pkg/tools"
	"github.com/escape-velocity-ventures/orbit/pkg/transport"
)

// scriptedTurn is one model turn: deltas to stream, or an error instead.
type scriptedTurn struct {
	deltas []provider.Delta
	err    error
}

// scriptedProvider replays prepared turns and records every request it saw.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []provider.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(_ context.Context, req provider.Request, fn provider.DeltaFunc) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if len(p.turns) == 0 {
		p.mu.Unlock()
		return errors.New("no scripted turns left")
	}
	turn := p.turns[0]
	p.turns = p.turns[1:]
	p.mu.Unlock()

	if turn.err != nil {
		return turn.err
	}
	for _, d := range turn.deltas {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func textTurn(chunks ...string) scriptedTurn {
	var deltas []provider.Delta
	for _, c := range chunks {
		deltas = append(deltas, provider.Delta{Text: c})
	}
	deltas = append(deltas, provider.Delta{FinishReason: provider.FinishStop})
	return scriptedTurn{deltas: deltas}
}

func toolTurn(id, name string, fragments ...string) scriptedTurn {
	deltas := []provider.Delta{
		{ToolCall: &provider.ToolCallDelta{Index: 0, ID: id, Name: name}},
	}
	for _, f := range fragments {
		deltas = append(deltas, provider.Delta{ToolCall: &provider.ToolCallDelta{Index: 0, ArgumentsFragment: f}})
	}
	deltas = append(deltas, provider.Delta{FinishReason: provider.FinishToolCalls})
	return scriptedTurn{deltas: deltas}
}

type fixture struct {
	runtime  *Runtime
	sessions *session.Manager
	provider *scriptedProvider
	calls    *recordedCalls
}

type recordedCalls struct {
	mu   sync.Mutex
	args []map[string]interface{}
}

func (r *recordedCalls) record(args map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]interface{}, len(args))
	for k, v := range args {
		cp[k] = v
	}
	r.args = append(r.args, cp)
}

func (r *recordedCalls) all() []map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]interface{}(nil), r.args...)
}

func newFixture(t *testing.T, turns []scriptedTurn, opts ...func(*Config)) *fixture {
	t.Helper()

	manager, err := session.NewManager(session.NewMemoryStore(), zerolog.Nop())
	require.NoError(t, err)

	calls := &recordedCalls{}
	registry := tools.NewRegistry(zerolog.Nop())
	require.NoError(t, registry.Register(tools.Definition{
		Name:        "lookup",
		Description: "records its arguments",
		Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
			calls.record(args)
			return "looked up", nil
		},
	}))

	router, err := transport.NewRouter(transport.RouterConfig{
		Registry: registry,
		Endpoints: []transport.Endpoint{
			{Name: "builtin", Kind: transport.KindInline, ToolPrefix: "", Enabled: true},
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	prov := &scriptedProvider{turns: turns}
	cfg := Config{
		Sessions: manager,
		Router:   router,
		Provider: prov,
		Logger:   zerolog.Nop(),
		Model:    "test-model",
		MaxTurns: 5,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	rt, err := New(cfg)
	require.NoError(t, err)
	return &fixture{runtime: rt, sessions: manager, provider: prov, calls: calls}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out collecting events, got %d so far", len(out))
		}
	}
}

func TestQueryRejectsEmptyPrompt(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.runtime.Query(context.Background(), QueryRequest{Prompt: "   "})
	assert.Error(t, err)
}

func TestQueryTextOnly(t *testing.T) {
	f := newFixture(t, []scriptedTurn{textTurn("Hello", ", ", "world")})

	events, err := f.runtime.Query(context.Background(), QueryRequest{Prompt: "hi"})
	require.NoError(t, err)
	got := collect(t, events)

	require.Len(t, got, 4)
	assert.Equal(t, EventChunk, got[0].Type)
	assert.Equal(t, "Hello", got[0].Text)
	assert.Equal(t, EventChunk, got[1].Type)
	assert.Equal(t, EventChunk, got[2].Type)
	assert.Equal(t, EventComplete, got[3].Type)

	sess, err := f.sessions.Get(context.Background(), got[3].SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, session.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, "Hello, world", sess.Messages[1].Content)
}

func TestQueryToolRoundTrip(t *testing.T) {
	f := newFixture(t, []scriptedTurn{
		toolTurn("call_1", "lookup", `{"a":1`, `}`),
		textTurn("done"),
	})

	events, err := f.runtime.Query(context.Background(), QueryRequest{Prompt: "look something up"})
	require.NoError(t, err)
	got := collect(t, events)

	var types []EventType
	for _, ev := range got {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventChunk, EventComplete}, types)

	// Fragments concatenate in stream order before parsing.
	assert.Equal(t, "lookup", got[0].ToolCall.Name)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, got[0].ToolCall.Arguments)

	require.NotNil(t, got[1].ToolResult)
	assert.True(t, got[1].ToolResult.Success)
	assert.Equal(t, "looked up", got[1].ToolResult.Value)

	args := f.calls.all()
	require.Len(t, args, 1)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, args[0])

	sess, err := f.sessions.Get(context.Background(), got[0].SessionID)
	require.NoError(t, err)
	// user, assistant(tool calls), tool, assistant(text)
	require.Len(t, sess.Messages, 4)
	assert.Equal(t, session.RoleAssistant, sess.Messages[1].Role)
	require.Len(t, sess.Messages[1].ToolCalls, 1)
	assert.Equal(t, `{"a":1}`, sess.Messages[1].ToolCalls[0].ArgumentsJSON)

	assert.Equal(t, session.RoleTool, sess.Messages[2].Role)
	assert.Equal(t, "call_1", sess.Messages[2].ToolCallID)

	var recorded transport.ToolResult
	require.NoError(t, json.Unmarshal([]byte(sess.Messages[2].Content), &recorded))
	assert.True(t, recorded.Success)
}

func TestQueryUnknownToolFeedsFailureBack(t *testing.T) {
	f := newFixture(t, []scriptedTurn{
		toolTurn("call_1", "no_such_tool", `{}`),
		textTurn("recovered"),
	})

	result, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "go"})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.False(t, result.Results[0].Success)
	assert.Equal(t, "recovered", result.Text)
}

func TestQueryMalformedArgumentsDispatchEmpty(t *testing.T) {
	f := newFixture(t, []scriptedTurn{
		toolTurn("call_1", "lookup", `{"broken`),
		textTurn("ok"),
	})

	result, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)

	args := f.calls.all()
	require.Len(t, args, 1)
	assert.Empty(t, args[0])
}

func TestQueryStopFinishNeverDispatchesAccumulatedCalls(t *testing.T) {
	// A turn cut off before the model finished asking for tools carries a
	// half-formed call; it must be recorded but never executed.
	turn := scriptedTurn{deltas: []provider.Delta{
		{ToolCall: &provider.ToolCallDelta{Index: 0, ID: "call_1", Name: "lookup"}},
		{ToolCall: &provider.ToolCallDelta{Index: 0, ArgumentsFragment: `{"a":`}},
		{FinishReason: provider.FinishStop},
	}}
	f := newFixture(t, []scriptedTurn{turn})

	events, err := f.runtime.Query(context.Background(), QueryRequest{Prompt: "go"})
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	assert.Equal(t, EventComplete, got[len(got)-1].Type)
	for _, ev := range got {
		assert.NotEqual(t, EventToolCall, ev.Type)
		assert.NotEqual(t, EventToolResult, ev.Type)
	}

	assert.Empty(t, f.calls.all())
	f.provider.mu.Lock()
	assert.Len(t, f.provider.requests, 1)
	f.provider.mu.Unlock()

	// The assistant turn is still committed, truncated call included.
	sess, err := f.sessions.Get(context.Background(), got[len(got)-1].SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	require.Len(t, sess.Messages[1].ToolCalls, 1)
	assert.Equal(t, `{"a":`, sess.Messages[1].ToolCalls[0].ArgumentsJSON)
}

func TestQueryLengthFinishTerminates(t *testing.T) {
	turn := scriptedTurn{deltas: []provider.Delta{
		{Text: "partial answer"},
		{ToolCall: &provider.ToolCallDelta{Index: 0, ID: "call_1", Name: "lookup"}},
		{FinishReason: provider.FinishLength},
	}}
	f := newFixture(t, []scriptedTurn{turn})

	result, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, "partial answer", result.Text)
	assert.Empty(t, result.ToolCalls)
	assert.Empty(t, f.calls.all())
}

func TestQueryMaxTurnsCap(t *testing.T) {
	// The model asks for a tool every turn and never finishes.
	var turns []scriptedTurn
	for i := 0; i < 10; i++ {
		turns = append(turns, toolTurn("call_1", "lookup", `{}`))
	}
	f := newFixture(t, turns, func(cfg *Config) { cfg.MaxTurns = 3 })

	events, err := f.runtime.Query(context.Background(), QueryRequest{Prompt: "loop forever"})
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	assert.Equal(t, EventComplete, got[len(got)-1].Type)
	assert.Len(t, f.calls.all(), 3)
	assert.Len(t, f.provider.requests, 3)
}

func TestQueryStreamErrorEmitsErrorEvent(t *testing.T) {
	f := newFixture(t, []scriptedTurn{{err: errors.New("upstream hiccup")}})

	events, err := f.runtime.Query(context.Background(), QueryRequest{Prompt: "hi"})
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Contains(t, last.Error, "upstream hiccup")

	// The prompt was committed before the stream failed.
	sess, err := f.sessions.Get(context.Background(), last.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, session.RoleUser, sess.Messages[0].Role)
}

func TestQueryContinuesExistingSession(t *testing.T) {
	f := newFixture(t, []scriptedTurn{textTurn("first"), textTurn("second")})
	ctx := context.Background()

	first, err := f.runtime.QuerySync(ctx, QueryRequest{Prompt: "one"})
	require.NoError(t, err)

	second, err := f.runtime.QuerySync(ctx, QueryRequest{Prompt: "two", SessionID: first.SessionID})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	sess, err := f.sessions.Get(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 4)

	// The second turn saw the full history.
	f.provider.mu.Lock()
	defer f.provider.mu.Unlock()
	require.Len(t, f.provider.requests, 2)
	assert.Len(t, f.provider.requests[1].Messages, 3)
}

func TestQueryUnknownSessionGetsFreshID(t *testing.T) {
	f := newFixture(t, []scriptedTurn{textTurn("hello")})

	result, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "hi", SessionID: "stale-id"})
	require.NoError(t, err)
	assert.NotEqual(t, "stale-id", result.SessionID)
	assert.NotEmpty(t, result.SessionID)
}

func TestQuerySystemPromptSeeded(t *testing.T) {
	f := newFixture(t, []scriptedTurn{textTurn("ack")}, func(cfg *Config) {
		cfg.SystemPrompt = "be brief"
	})

	result, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "hi"})
	require.NoError(t, err)

	sess, err := f.sessions.Get(context.Background(), result.SessionID)
	require.NoError(t, err)
	require.NotEmpty(t, sess.Messages)
	assert.Equal(t, session.RoleSystem, sess.Messages[0].Role)
	assert.Equal(t, "be brief", sess.Messages[0].Content)
}

func TestQueryTruncatesToBudget(t *testing.T) {
	f := newFixture(t, []scriptedTurn{textTurn("short")}, func(cfg *Config) {
		cfg.MaxContextTokens = 50
	})
	ctx := context.Background()

	sess, err := f.sessions.Create(ctx, "")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, f.sessions.AddMessage(ctx, sess.ID, session.Message{
			Role:    session.RoleUser,
			Content: "padding padding padding padding padding padding",
		}))
	}

	result, err := f.runtime.QuerySync(ctx, QueryRequest{Prompt: "latest", SessionID: sess.ID})
	require.NoError(t, err)

	loaded, err := f.sessions.Get(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Less(t, len(loaded.Messages), 12)
}

func TestQuerySyncPropagatesErrorEvent(t *testing.T) {
	f := newFixture(t, []scriptedTurn{{err: errors.New("boom")}})

	_, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestQueryParallelToolCallsDispatchInStreamOrder(t *testing.T) {
	turn := scriptedTurn{deltas: []provider.Delta{
		{ToolCall: &provider.ToolCallDelta{Index: 0, ID: "call_a", Name: "lookup"}},
		{ToolCall: &provider.ToolCallDelta{Index: 1, ID: "call_b", Name: "lookup"}},
		{ToolCall: &provider.ToolCallDelta{Index: 0, ArgumentsFragment: `{"n":"a"}`}},
		{ToolCall: &provider.ToolCallDelta{Index: 1, ArgumentsFragment: `{"n":"b"}`}},
		{FinishReason: provider.FinishToolCalls},
	}}
	f := newFixture(t, []scriptedTurn{turn, textTurn("both done")})

	result, err := f.runtime.QuerySync(context.Background(), QueryRequest{Prompt: "go"})
	require.NoError(t, err)

	require.Len(t, result.ToolCalls, 2)
	assert.Equal(t, "call_a", result.ToolCalls[0].ID)
	assert.Equal(t, "call_b", result.ToolCalls[1].ID)

	args := f.calls.all()
	require.Len(t, args, 2)
	assert.Equal(t, "a", args[0]["n"])
	assert.Equal(t, "b", args[1]["n"])
}
