package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/internal/observability"
	"github.com/escape-velocity-ventures/orbit/pkg/provider"
	"github.com/escape-velocity-ventures/orbit/pkg/session"
	"github.com/escape-velocity-ventures/orbit/pkg/transport"
)

const (
	// DefaultMaxTurns caps the stream/dispatch cycles of a single query.
	DefaultMaxTurns = 10

	eventBuffer = 64
)

// Config assembles a Runtime.
type Config struct {
	Sessions *session.Manager
	Router   *transport.Router
	Provider provider.Provider
	Logger   zerolog.Logger

	Model            string
	SystemPrompt     string
	MaxTurns         int
	MaxContextTokens int
}

// Runtime executes queries against a provider, persisting every committed
// turn through the session manager.
type Runtime struct {
	sessions *session.Manager
	router   *transport.Router
	provider provider.Provider
	logger   zerolog.Logger

	model            string
	systemPrompt     string
	maxTurns         int
	maxContextTokens int
}

// New validates the configuration and builds a Runtime.
func New(cfg Config) (*Runtime, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("transport router is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	observability.EnsureRegistered()

	return &Runtime{
		sessions:         cfg.Sessions,
		router:           cfg.Router,
		provider:         cfg.Provider,
		logger:           cfg.Logger,
		model:            cfg.Model,
		systemPrompt:     cfg.SystemPrompt,
		maxTurns:         cfg.MaxTurns,
		maxContextTokens: cfg.MaxContextTokens,
	}, nil
}

// QueryRequest is one user prompt against a session. An empty SessionID
// starts a fresh session; an unknown one is replaced rather than adopted.
type QueryRequest struct {
	Prompt      string `json:"prompt"`
	SessionID   string `json:"session_id,omitempty"`
	EffortLevel string `json:"effort_level,omitempty"`
}

// Query runs the orchestration loop in the background and returns its event
// stream. The channel is closed after the terminal complete or error event.
// The user prompt is committed before Query returns, so a stream failure
// never loses it.
func (r *Runtime) Query(ctx context.Context, req QueryRequest) (<-chan Event, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("prompt must not be empty")
	}

	sess, err := r.sessions.GetOrCreate(ctx, req.SessionID, r.systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	if err := r.sessions.AddMessage(ctx, sess.ID, session.Message{
		Role:    session.RoleUser,
		Content: req.Prompt,
	}); err != nil {
		return nil, fmt.Errorf("failed to record prompt: %w", err)
	}
	if err := r.truncate(ctx, sess.ID); err != nil {
		return nil, err
	}

	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		observability.QueryStarted()
		defer observability.QueryFinished()
		r.run(ctx, sess.ID, req.EffortLevel, events)
	}()
	return events, nil
}

// run executes up to maxTurns stream/dispatch cycles for the session.
func (r *Runtime) run(ctx context.Context, sessionID, effortLevel string, events chan<- Event) {
	logger := r.logger.With().Str("session_id", sessionID).Logger()

	for turn := 0; turn < r.maxTurns; turn++ {
		sess, err := r.sessions.Get(ctx, sessionID)
		if err != nil {
			r.emitError(ctx, events, sessionID, fmt.Errorf("failed to load session: %w", err))
			return
		}

		specs := provider.SpecsFromTools(r.router.ListAllTools(ctx))
		acc := newToolCallAccumulator()
		var text strings.Builder
		finish := provider.FinishNone

		turnStart := time.Now()
		streamErr := r.provider.Stream(ctx, provider.Request{
			Model:       r.model,
			System:      r.systemPrompt,
			Messages:    sess.Messages,
			Tools:       specs,
			EffortLevel: effortLevel,
		}, func(delta provider.Delta) error {
			if delta.Text != "" {
				text.WriteString(delta.Text)
				if !r.emit(ctx, events, Event{Type: EventChunk, SessionID: sessionID, Text: delta.Text}) {
					return ctx.Err()
				}
			}
			if delta.ToolCall != nil {
				if err := acc.add(delta.ToolCall); err != nil {
					return err
				}
			}
			if delta.FinishReason != provider.FinishNone {
				finish = delta.FinishReason
			}
			return nil
		})
		observability.RecordModelTurn(r.provider.Name(), string(finish), time.Since(turnStart))

		if streamErr != nil {
			observability.RecordStreamError(r.provider.Name())
			logger.Error().Err(streamErr).Int("turn", turn).Msg("Model stream failed")
			r.emitError(ctx, events, sessionID, streamErr)
			return
		}

		// Commit the assistant turn before dispatching anything, so tool
		// results always follow their requesting message in the history.
		assistantMsg := session.Message{
			Role:      session.RoleAssistant,
			Content:   text.String(),
			ToolCalls: acc.requests(),
		}
		if err := r.sessions.AddMessage(ctx, sessionID, assistantMsg); err != nil {
			r.emitError(ctx, events, sessionID, fmt.Errorf("failed to record assistant turn: %w", err))
			return
		}

		// Dispatch only when the model explicitly finished asking for
		// tools. A turn cut off mid-stream (stop, length) may carry
		// half-formed calls that must never execute.
		if finish != provider.FinishToolCalls || acc.empty() {
			r.emit(ctx, events, Event{Type: EventComplete, SessionID: sessionID})
			return
		}

		for _, call := range acc.requests() {
			args := parseArguments(call.ArgumentsJSON, logger)

			if !r.emit(ctx, events, Event{
				Type:      EventToolCall,
				SessionID: sessionID,
				ToolCall:  &ToolCallInfo{ID: call.ID, Name: call.Name, Arguments: args},
			}) {
				return
			}

			result := r.router.CallTool(ctx, call.Name, args)

			if !r.emit(ctx, events, Event{
				Type:       EventToolResult,
				SessionID:  sessionID,
				ToolCall:   &ToolCallInfo{ID: call.ID, Name: call.Name},
				ToolResult: &result,
			}) {
				return
			}

			resultJSON, err := json.Marshal(result)
			if err != nil {
				resultJSON = []byte(`{"success":false,"error":"unserializable tool result"}`)
			}
			if err := r.sessions.AddMessage(ctx, sessionID, session.Message{
				Role:       session.RoleTool,
				Content:    string(resultJSON),
				ToolCallID: call.ID,
			}); err != nil {
				r.emitError(ctx, events, sessionID, fmt.Errorf("failed to record tool result: %w", err))
				return
			}
		}

		if err := r.truncate(ctx, sessionID); err != nil {
			r.emitError(ctx, events, sessionID, err)
			return
		}
	}

	logger.Warn().Int("max_turns", r.maxTurns).Msg("Turn cap reached, completing query")
	r.emit(ctx, events, Event{Type: EventComplete, SessionID: sessionID})
}

func (r *Runtime) truncate(ctx context.Context, sessionID string) error {
	if r.maxContextTokens <= 0 {
		return nil
	}
	if err := r.sessions.TruncateToFit(ctx, sessionID, r.maxContextTokens); err != nil {
		return fmt.Errorf("failed to truncate session: %w", err)
	}
	return nil
}

// emit delivers an event unless the context is done. Returns false when the
// caller should abandon the query.
func (r *Runtime) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runtime) emitError(ctx context.Context, events chan<- Event, sessionID string, err error) {
	r.emit(ctx, events, Event{Type: EventError, SessionID: sessionID, Error: err.Error()})
}

// parseArguments decodes accumulated tool arguments. Malformed JSON from
// the model degrades to an empty argument map so the call still dispatches
// and the failure surfaces as tool output.
func parseArguments(raw string, logger zerolog.Logger) map[string]interface{} {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		logger.Warn().Err(err).Msg("Malformed tool arguments from model, using empty arguments")
		return map[string]interface{}{}
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args
}

// SyncResult is the collected outcome of QuerySync.
type SyncResult struct {
	SessionID string                 `json:"session_id"`
	Text      string                 `json:"text"`
	ToolCalls []ToolCallInfo         `json:"tool_calls,omitempty"`
	Results   []transport.ToolResult `json:"tool_results,omitempty"`
}

// QuerySync runs Query and drains the stream, returning the concatenated
// assistant text. A terminal error event becomes the returned error.
func (r *Runtime) QuerySync(ctx context.Context, req QueryRequest) (*SyncResult, error) {
	events, err := r.Query(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{}
	var text strings.Builder
	for ev := range events {
		result.SessionID = ev.SessionID
		switch ev.Type {
		case EventChunk:
			text.WriteString(ev.Text)
		case EventToolCall:
			result.ToolCalls = append(result.ToolCalls, *ev.ToolCall)
		case EventToolResult:
			if ev.ToolResult != nil {
				result.Results = append(result.Results, *ev.ToolResult)
			}
		case EventError:
			return nil, fmt.Errorf("query failed: %s", ev.Error)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Text = text.String()
	return result, nil
}
