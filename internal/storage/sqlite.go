// Package storage implements the durable conversation backend on SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"agentchat/internal/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.DurableStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		agent_id    TEXT NOT NULL,
		messages    TEXT NOT NULL DEFAULT '[]',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_pair ON conversations(owner_id, agent_id, updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// FindLatestConversation returns the most recently updated conversation for
// the (owner, agent) pair, or nil when none exists.
func (s *SQLiteStore) FindLatestConversation(ctx context.Context, ownerID, agentID string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var messagesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, agent_id, messages, created_at, updated_at
		 FROM conversations WHERE owner_id = ? AND agent_id = ?
		 ORDER BY updated_at DESC, created_at DESC LIMIT 1`,
		ownerID, agentID,
	).Scan(&conv.ID, &conv.OwnerID, &conv.AgentID, &messagesJSON, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for conversation %s: %w", conv.ID, err)
	}
	return &conv, nil
}

// InsertConversation creates a fresh empty conversation for the pair and
// returns it. The new row becomes the pair's latest by construction.
func (s *SQLiteStore) InsertConversation(ctx context.Context, ownerID, agentID string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		AgentID:   agentID,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, owner_id, agent_id, messages, created_at, updated_at)
		 VALUES (?, ?, ?, '[]', ?, ?)`,
		conv.ID, conv.OwnerID, conv.AgentID, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.logger.Info("created new conversation",
		"conversation", conv.ID,
		"owner", ownerID,
		"agent", agentID,
	)
	return &conv, nil
}

// UpdateConversationMessages replaces the conversation's message list.
func (s *SQLiteStore) UpdateConversationMessages(ctx context.Context, id string, messages []domain.Message, updatedAt time.Time) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?`,
		string(data), updatedAt, id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
