package session

import (
	"context"
	"errors"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a model-requested tool invocation. ArgumentsJSON may
// arrive fragment-by-fragment while streaming and holds the concatenated
// raw JSON, parsed only at dispatch time.
type ToolCallRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ArgumentsJSON string `json:"arguments_json"`
}

// Message represents a single conversation turn.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Session is a persisted conversation transcript addressed by an opaque
// identifier. Messages are in conversation order and append-only except
// for front truncation of non-system messages.
type Session struct {
	ID        string            `json:"id"`
	Messages  []Message         `json:"messages"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so that store readers never alias writer memory.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		cm := m
		if len(m.ToolCalls) > 0 {
			cm.ToolCalls = make([]ToolCallRequest, len(m.ToolCalls))
			copy(cm.ToolCalls, m.ToolCalls)
		}
		cp.Messages[i] = cm
	}
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// EstimateTokens provides a rough token count estimation for a transcript.
// Rough estimation: 1 token ≈ 4 characters.
func EstimateTokens(messages []Message) int {
	totalChars := 0
	for _, msg := range messages {
		totalChars += len(msg.Content)
		for _, tc := range msg.ToolCalls {
			totalChars += len(tc.Name) + len(tc.ArgumentsJSON)
		}
	}
	return (totalChars + 3) / 4
}

// ErrNotFound is returned when a session id does not resolve to a stored
// session. Callers are expected to recover by re-creating.
var ErrNotFound = errors.New("session not found")

// Store is the persistence contract consumed by the Manager. Absence is
// signalled with ErrNotFound, never with a nil session.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}
