package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/escape-velocity-ventures/orbit/internal/observability"
)

// Manager provides lifecycle operations on sessions atop a pluggable Store.
// Appends to one session id are serialized with a per-id lock so a reader
// never observes a partially-appended message. Writers to the same id from
// different processes are last-write-wins.
type Manager struct {
	store      Store
	logger     zerolog.Logger
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewManager creates a Manager backed by the given store.
func NewManager(store Store, logger zerolog.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	observability.EnsureRegistered()

	return &Manager{
		store:      store,
		logger:     logger,
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

func (m *Manager) getWriteLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, ok := m.writeLocks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.writeLocks[id] = lock
	return lock
}

// Create allocates a new session, optionally seeded with a single system
// message, and persists it.
func (m *Manager) Create(ctx context.Context, systemPrompt string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]string{},
	}
	if systemPrompt != "" {
		sess.Messages = []Message{{
			Role:      RoleSystem,
			Content:   systemPrompt,
			Timestamp: now,
		}}
	}

	if err := m.store.Set(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist new session: %w", err)
	}

	m.logger.Info().Str("session_id", sess.ID).Msg("Session created")
	return sess, nil
}

// Get loads a session by id.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()
	return m.store.Get(ctx, id)
}

// GetOrCreate returns the existing session when id is supplied and found,
// otherwise creates a fresh one. Absence is a creation trigger, not an
// error; an unknown id is never adopted for the new session.
func (m *Manager) GetOrCreate(ctx context.Context, id, systemPrompt string) (*Session, error) {
	if id != "" {
		sess, err := m.Get(ctx, id)
		if err == nil {
			return sess, nil
		}
		if err != ErrNotFound {
			return nil, err
		}
		m.logger.Debug().Str("session_id", id).Msg("Session not found, creating fresh")
	}
	return m.Create(ctx, systemPrompt)
}

// AddMessage appends a message and bumps UpdatedAt. Returns ErrNotFound if
// the session does not exist.
func (m *Manager) AddMessage(ctx context.Context, id string, msg Message) error {
	if msg.Role == "" {
		return fmt.Errorf("message role cannot be empty")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	lock := m.getWriteLock(id)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()

	if err := m.store.Set(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	m.logger.Debug().
		Str("session_id", id).
		Str("role", string(msg.Role)).
		Msg("Message appended")
	return nil
}

// TruncateToFit drops the oldest non-system messages until the estimated
// token size fits the budget or only system messages remain. Lossy and
// irreversible; no archival copy is kept.
func (m *Manager) TruncateToFit(ctx context.Context, id string, maxTokenBudget int) error {
	if maxTokenBudget <= 0 {
		return fmt.Errorf("token budget must be positive")
	}

	lock := m.getWriteLock(id)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}

	dropped := 0
	for EstimateTokens(sess.Messages) > maxTokenBudget {
		idx := -1
		for i, msg := range sess.Messages {
			if msg.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		sess.Messages = append(sess.Messages[:idx], sess.Messages[idx+1:]...)
		dropped++
	}

	if dropped == 0 {
		return nil
	}

	sess.UpdatedAt = time.Now()
	if err := m.store.Set(ctx, sess); err != nil {
		return fmt.Errorf("failed to persist truncated session: %w", err)
	}

	m.logger.Info().
		Str("session_id", id).
		Int("dropped", dropped).
		Int("budget", maxTokenBudget).
		Msg("Session truncated to budget")
	return nil
}

// Delete removes a session. Idempotent; deleting an unknown id is not an
// error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	lock := m.getWriteLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	// The lock entry stays: dropping it would let a writer still holding
	// the old mutex race a fresh one minted for the same id.
	m.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// List returns the ids of all stored sessions.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	observability.SetActiveSessions(len(ids))
	return ids, nil
}

// Close releases the manager and its store.
func (m *Manager) Close() error {
	m.locksMu.Lock()
	m.writeLocks = make(map[string]*sync.Mutex)
	m.locksMu.Unlock()
	return m.store.Close()
}
