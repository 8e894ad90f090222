package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"aihub-gateway/internal/models"
)

// MemoryStore keeps sessions in process memory. It is the default backend
// and the one used throughout the tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ChatSession
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.ChatSession)}
}

// CreateSession creates a new empty session with a generated id.
func (m *MemoryStore) CreateSession(_ context.Context, title string) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := nowTimestamp()
	session := &models.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []models.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[session.ID] = session
	return cloneSession(session), nil
}

// GetSession returns a copy of the session, or ErrSessionNotFound.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// ListSessions returns all sessions, most recently updated first.
func (m *MemoryStore) ListSessions(_ context.Context) ([]models.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChatSession, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, *cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteSession removes the session, or returns ErrSessionNotFound.
func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// AppendMessage appends a message to the session's history.
func (m *MemoryStore) AppendMessage(_ context.Context, sessionID string, msg models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = nowTimestamp()
	return nil
}

// UpdateSessionTitle renames the session.
func (m *MemoryStore) UpdateSessionTitle(_ context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.Title = title
	session.UpdatedAt = nowTimestamp()
	return nil
}

// Close is a no-op for the in-memory backend.
func (m *MemoryStore) Close() error {
	return nil
}

func cloneSession(s *models.ChatSession) *models.ChatSession {
	clone := *s
	clone.Messages = make([]models.ChatMessage, len(s.Messages))
	copy(clone.Messages, s.Messages)
	return &clone
}
