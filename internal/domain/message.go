package domain

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// DeliveryState tracks a message through its lifecycle. A message is
// immutable once Delivered or Failed; only Text and DeliveryState are
// mutated in place while streaming.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateStreaming DeliveryState = "streaming"
	StateDelivered DeliveryState = "delivered"
	StateFailed    DeliveryState = "failed"
)

type Message struct {
	ID            string        `json:"id"`
	Role          Role          `json:"role"`
	Text          string        `json:"text"`
	AttachmentRef string        `json:"attachment_ref,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	DeliveryState DeliveryState `json:"delivery_state"`
}

// Conversation is the append-only message list for one (owner, agent) pair.
// Insertion order is chronological order; UpdatedAt is bumped on every append.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	AgentID   string    `json:"agent_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot is the local fallback copy of a conversation, overwritten on
// every save attempt regardless of durable-write outcome.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	SavedAt        time.Time `json:"saved_at"`
}
