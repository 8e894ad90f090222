// Package store persists chat sessions and their message history.
package store

import (
	"context"
	"errors"
	"time"

	"aihub-gateway/internal/models"
)

// ErrSessionNotFound indicates the requested session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store is the session persistence contract. The dispatcher is the only
// writer within one request's lifecycle; cross-request contention on the
// same session is left to each implementation's own locking.
type Store interface {
	CreateSession(ctx context.Context, title string) (*models.ChatSession, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) error
	UpdateSessionTitle(ctx context.Context, id, title string) error
	Close() error
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
