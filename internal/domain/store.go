package domain

import (
	"context"
	"time"
)

// DurableStore is the persistent store of record for conversations.
type DurableStore interface {
	// FindLatestConversation returns the most recently updated conversation
	// for the pair, or nil when none exists.
	FindLatestConversation(ctx context.Context, ownerID, agentID string) (*Conversation, error)
	InsertConversation(ctx context.Context, ownerID, agentID string) (*Conversation, error)
	UpdateConversationMessages(ctx context.Context, id string, messages []Message, updatedAt time.Time) error
}

// FallbackStore is the same-device snapshot cache used to degrade gracefully
// when the durable store is unreachable. Best effort, never authoritative.
type FallbackStore interface {
	LoadSnapshot(ownerID, agentID string) (*Snapshot, bool)
	SaveSnapshot(ownerID, agentID string, snap Snapshot) error
}
