// Package conversation composes the durable backend and the local fallback
// into one store with an explicit read-repair policy: reads prefer the
// durable store and refresh the fallback; durable failures degrade to the
// fallback instead of surfacing.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"agentchat/internal/domain"
	"agentchat/internal/metrics"

	"github.com/google/uuid"
)

// Store is the two-tier conversation store.
type Store struct {
	durable  domain.DurableStore
	fallback domain.FallbackStore
	logger   *slog.Logger
}

func New(durable domain.DurableStore, fb domain.FallbackStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{durable: durable, fallback: fb, logger: logger}
}

// Load returns the active conversation for the pair, creating one lazily
// when none exists. On durable failure it returns the local snapshot if one
// is present, otherwise an empty in-memory conversation that has not yet
// been durably created. Load never fails.
func (s *Store) Load(ctx context.Context, ownerID, agentID string) domain.Conversation {
	conv, err := s.durable.FindLatestConversation(ctx, ownerID, agentID)
	if err != nil {
		metrics.PersistenceFailures.Inc()
		s.logger.Warn("durable load failed, degrading to local snapshot",
			"owner", ownerID, "agent", agentID, "err", err)
		return s.degraded(ownerID, agentID)
	}

	if conv == nil {
		conv, err = s.durable.InsertConversation(ctx, ownerID, agentID)
		if err != nil {
			metrics.PersistenceFailures.Inc()
			s.logger.Warn("durable create failed, degrading to local snapshot",
				"owner", ownerID, "agent", agentID, "err", err)
			return s.degraded(ownerID, agentID)
		}
	}

	s.snapshot(*conv)
	return *conv
}

func (s *Store) degraded(ownerID, agentID string) domain.Conversation {
	if snap, ok := s.fallback.LoadSnapshot(ownerID, agentID); ok {
		return domain.Conversation{
			ID:        snap.ConversationID,
			OwnerID:   ownerID,
			AgentID:   agentID,
			Messages:  snap.Messages,
			CreatedAt: snap.SavedAt,
			UpdatedAt: snap.SavedAt,
		}
	}
	now := time.Now()
	return domain.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		AgentID:   agentID,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append returns a new conversation value with the message appended and
// UpdatedAt refreshed. It does not persist; persistence is an explicit Save.
func Append(conv domain.Conversation, msg domain.Message) domain.Conversation {
	messages := make([]domain.Message, 0, len(conv.Messages)+1)
	messages = append(messages, conv.Messages...)
	messages = append(messages, msg)
	conv.Messages = messages
	conv.UpdatedAt = time.Now()
	return conv
}

// Save writes the conversation to the durable backend. The local fallback
// snapshot is overwritten with the in-memory state regardless of the
// durable outcome; a durable failure is reported as *domain.PersistenceError
// for logging but never rolls back the in-memory conversation.
func (s *Store) Save(ctx context.Context, conv domain.Conversation) error {
	derr := s.durable.UpdateConversationMessages(ctx, conv.ID, conv.Messages, conv.UpdatedAt)

	s.snapshot(conv)

	if derr != nil {
		metrics.PersistenceFailures.Inc()
		return &domain.PersistenceError{Op: "save", Err: derr}
	}
	return nil
}

// Clear replaces the pair's active conversation with a brand-new empty one.
// Unlike load/save there is no safe fallback for history-clearing: a durable
// failure is surfaced and the previous conversation stays active.
func (s *Store) Clear(ctx context.Context, ownerID, agentID string) (domain.Conversation, error) {
	conv, err := s.durable.InsertConversation(ctx, ownerID, agentID)
	if err != nil {
		metrics.PersistenceFailures.Inc()
		return domain.Conversation{}, &domain.PersistenceError{Op: "clear", Err: err}
	}
	s.snapshot(*conv)
	s.logger.Info("conversation cleared", "owner", ownerID, "agent", agentID, "conversation", conv.ID)
	return *conv, nil
}

func (s *Store) snapshot(conv domain.Conversation) {
	snap := domain.Snapshot{
		ConversationID: conv.ID,
		Messages:       conv.Messages,
		SavedAt:        time.Now(),
	}
	if err := s.fallback.SaveSnapshot(conv.OwnerID, conv.AgentID, snap); err != nil {
		s.logger.Warn("fallback snapshot write failed",
			"owner", conv.OwnerID, "agent", conv.AgentID, "err", err)
	}
}
