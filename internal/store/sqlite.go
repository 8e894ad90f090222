package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"aihub-gateway/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	timestamp       TEXT NOT NULL,
	model_responses TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
`

// SQLiteStore persists sessions to an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// initializes the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// CreateSession creates a new empty session with a generated id.
func (s *SQLiteStore) CreateSession(ctx context.Context, title string) (*models.ChatSession, error) {
	now := nowTimestamp()
	session := &models.ChatSession{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  []models.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Title, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession returns the session with its full message history.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?`, id).
		Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	messages, err := s.loadMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Messages = messages
	return &session, nil
}

// ListSessions returns all sessions with their histories, most recently
// updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.ChatSession, 0)
	for rows.Next() {
		var session models.ChatSession
		if err := rows.Scan(&session.ID, &session.Title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	for i := range sessions {
		messages, err := s.loadMessages(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		sessions[i].Messages = messages
	}
	return sessions, nil
}

// DeleteSession removes the session and, via the cascade, its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AppendMessage appends a message to the session's history.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, msg models.ChatMessage) error {
	var responsesJSON sql.NullString
	if len(msg.ModelResponses) > 0 {
		data, err := json.Marshal(msg.ModelResponses)
		if err != nil {
			return fmt.Errorf("marshal model responses: %w", err)
		}
		responsesJSON = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, nowTimestamp(), sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, timestamp, model_responses) VALUES (?, ?, ?, ?, ?)`,
		sessionID, msg.Role, msg.Content, msg.Timestamp, responsesJSON)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	return tx.Commit()
}

// UpdateSessionTitle renames the session.
func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`, title, nowTimestamp(), id)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update title rows affected: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) loadMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, timestamp, model_responses FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.ChatMessage, 0)
	for rows.Next() {
		var msg models.ChatMessage
		var responsesJSON sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Timestamp, &responsesJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if responsesJSON.Valid {
			if err := json.Unmarshal([]byte(responsesJSON.String), &msg.ModelResponses); err != nil {
				return nil, fmt.Errorf("unmarshal model responses: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}
