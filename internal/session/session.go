// Package session owns the per-conversation state machine: it feeds user
// input (typed or dictated, with an optional image) through the attachment
// validator and exchange client, drives the reply stream, and keeps the
// conversation persisted through the two-tier store.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"agentchat/internal/attachment"
	"agentchat/internal/conversation"
	"agentchat/internal/domain"
	"agentchat/internal/exchange"
	"agentchat/internal/stream"

	"github.com/google/uuid"
)

// Config wires one conversation session.
type Config struct {
	OwnerID   string
	AgentID   string
	Endpoint  string
	Exchange  *exchange.Client
	Store     *conversation.Store
	Presenter *stream.Presenter
	Validator *attachment.Validator
	// Notify surfaces recoverable, user-visible notices (clear failures,
	// recognition errors other than no-speech). Optional.
	Notify func(text string)
	Logger *slog.Logger
}

// Session holds the active conversation for one (owner, agent) pair.
// Sends may overlap; each owns its exchange and stream, while user-message
// append order follows Send invocation order.
type Session struct {
	ownerID   string
	agentID   string
	endpoint  string
	exchange  *exchange.Client
	store     *conversation.Store
	presenter *stream.Presenter
	validator *attachment.Validator
	notify    func(string)
	logger    *slog.Logger

	mu             sync.Mutex
	conv           domain.Conversation
	streams        map[string]struct{} // message ids with a reveal in flight
	input          string              // pending input buffer, replaced by dictation results
	lastFailedText string
}

// New loads (or lazily creates) the active conversation and returns the
// session around it.
func New(ctx context.Context, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		ownerID:   cfg.OwnerID,
		agentID:   cfg.AgentID,
		endpoint:  cfg.Endpoint,
		exchange:  cfg.Exchange,
		store:     cfg.Store,
		presenter: cfg.Presenter,
		validator: cfg.Validator,
		notify:    cfg.Notify,
		logger:    cfg.Logger,
		streams:   make(map[string]struct{}),
	}
	s.conv = cfg.Store.Load(ctx, cfg.OwnerID, cfg.AgentID)
	return s
}

// Conversation returns the current in-memory conversation state.
func (s *Session) Conversation() domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneLocked()
}

// cloneLocked copies the conversation with its own message slice. Mutators
// hand this out so callers can marshal it outside the lock without racing
// later in-place stream updates. Callers hold s.mu.
func (s *Session) cloneLocked() domain.Conversation {
	conv := s.conv
	conv.Messages = append([]domain.Message(nil), s.conv.Messages...)
	return conv
}

// Send appends the user message and delivers it to the agent in the
// background, returning the event stream for this message's reply. The
// returned channel closes after the terminal event (done or error).
// Validation failures are returned synchronously.
func (s *Session) Send(ctx context.Context, text string, file *attachment.File) (<-chan domain.StreamEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" && file == nil {
		return nil, errors.New("empty message")
	}

	var att *exchange.Attachment
	var ref string
	if file != nil {
		var err error
		ref, err = s.validator.Validate(*file)
		if err != nil {
			return nil, err
		}
		att = &exchange.Attachment{Filename: file.Name, MIMEType: file.MIMEType, Ref: ref}
	}

	userMsg := domain.Message{
		ID:            uuid.NewString(),
		Role:          domain.RoleUser,
		Text:          text,
		AttachmentRef: ref,
		CreatedAt:     time.Now(),
		DeliveryState: domain.StateSent,
	}

	// Append synchronously so user messages land in Send invocation order
	// even when exchanges overlap.
	conv := s.append(userMsg)
	s.saveQuiet(ctx, conv)

	events := make(chan domain.StreamEvent, 8)
	go s.deliver(ctx, userMsg, att, events)
	return events, nil
}

// Retry resubmits the text of the last failed send.
func (s *Session) Retry(ctx context.Context) (<-chan domain.StreamEvent, error) {
	s.mu.Lock()
	text := s.lastFailedText
	s.lastFailedText = ""
	s.mu.Unlock()
	if text == "" {
		return nil, errors.New("nothing to retry")
	}
	return s.Send(ctx, text, nil)
}

// Clear replaces the conversation with a fresh empty one. This session's
// running reply streams are cancelled first so no partial lands on a
// discarded message; the presenter is shared across sessions, so streams
// belonging to other conversations keep running.
// Durable failure leaves the previous conversation active and is surfaced.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.presenter.Cancel(id)
	}

	fresh, err := s.store.Clear(ctx, s.ownerID, s.agentID)
	if err != nil {
		if s.notify != nil {
			s.notify("could not clear the conversation")
		}
		return err
	}

	s.mu.Lock()
	s.conv = fresh
	s.lastFailedText = ""
	s.mu.Unlock()
	return nil
}

func (s *Session) deliver(ctx context.Context, userMsg domain.Message, att *exchange.Attachment, events chan<- domain.StreamEvent) {
	defer close(events)

	reply, err := s.exchange.Send(ctx, exchange.Request{
		ConversationID: s.conversationID(),
		OwnerID:        s.ownerID,
		AgentID:        s.agentID,
		Endpoint:       s.endpoint,
		Text:           userMsg.Text,
		Attachment:     att,
	})
	if err != nil {
		s.failDelivery(ctx, userMsg, err, events)
		return
	}

	agentMsg := domain.Message{
		ID:            uuid.NewString(),
		Role:          domain.RoleAgent,
		CreatedAt:     time.Now(),
		DeliveryState: domain.StateStreaming,
	}
	s.append(agentMsg)

	s.mu.Lock()
	s.streams[agentMsg.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.streams, agentMsg.ID)
		s.mu.Unlock()
	}()

	partials, err := s.presenter.Present(ctx, agentMsg.ID, reply)
	if err != nil {
		// Should not happen for a fresh message id; finalize directly.
		s.logger.Warn("stream start failed, delivering whole reply", "err", err)
		conv := s.updateMessage(agentMsg.ID, reply, domain.StateDelivered)
		s.saveQuiet(ctx, conv)
		s.emit(ctx, events, domain.StreamEvent{Type: domain.StreamDone, MessageID: agentMsg.ID, Content: reply})
		return
	}

	delivered := false
	for partial := range partials {
		if partial.Done {
			conv := s.updateMessage(agentMsg.ID, partial.Text, domain.StateDelivered)
			s.saveQuiet(ctx, conv)
			s.emit(ctx, events, domain.StreamEvent{Type: domain.StreamDone, MessageID: agentMsg.ID, Content: partial.Text})
			delivered = true
			continue
		}
		s.updateMessage(agentMsg.ID, partial.Text, domain.StateStreaming)
		if !s.emit(ctx, events, domain.StreamEvent{Type: domain.StreamPartial, MessageID: agentMsg.ID, Content: partial.Text}) {
			return
		}
	}
	if !delivered {
		s.logger.Debug("reply stream cancelled before completion", "message", agentMsg.ID)
	}
}

func (s *Session) failDelivery(ctx context.Context, userMsg domain.Message, err error, events chan<- domain.StreamEvent) {
	s.logger.Warn("exchange failed after retries", "err", err)

	failed := domain.Message{
		ID:            uuid.NewString(),
		Role:          domain.RoleAgent,
		Text:          err.Error(),
		CreatedAt:     time.Now(),
		DeliveryState: domain.StateFailed,
	}

	s.mu.Lock()
	s.lastFailedText = userMsg.Text
	s.conv = conversation.Append(s.conv, failed)
	conv := s.cloneLocked()
	s.mu.Unlock()

	s.saveQuiet(ctx, conv)
	s.emit(ctx, events, domain.StreamEvent{Type: domain.StreamError, MessageID: failed.ID, Content: failed.Text})
}

// append adds a message to the conversation and returns a copy of the new
// state.
func (s *Session) append(msg domain.Message) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv = conversation.Append(s.conv, msg)
	return s.cloneLocked()
}

// updateMessage mutates a streaming message's text and delivery state in
// place. A message discarded by a clear is simply gone, so the update is a
// no-op then; no stray writes.
func (s *Session) updateMessage(id, text string, state domain.DeliveryState) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conv.Messages {
		if s.conv.Messages[i].ID == id {
			s.conv.Messages[i].Text = text
			s.conv.Messages[i].DeliveryState = state
			if state == domain.StateDelivered {
				s.conv.UpdatedAt = time.Now()
			}
			break
		}
	}
	return s.cloneLocked()
}

// saveQuiet persists best-effort: durable failures degrade to the fallback
// snapshot inside the store and are only logged here.
func (s *Session) saveQuiet(ctx context.Context, conv domain.Conversation) {
	if err := s.store.Save(ctx, conv); err != nil {
		s.logger.Warn("conversation save degraded to local fallback", "err", err)
	}
}

func (s *Session) emit(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) conversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}

// VoiceEvents adapts this session as the sink for a voice input adapter.
// Each recognized utterance replaces the pending input buffer; no-speech
// errors are suppressed from user-facing notification.
func (s *Session) VoiceEvents() domain.VoiceEvents {
	return domain.VoiceEvents{
		OnResult: func(text string) {
			s.mu.Lock()
			s.input = text
			s.mu.Unlock()
		},
		OnError: func(kind string) {
			if kind == domain.NoSpeech {
				s.logger.Debug("no speech detected")
				return
			}
			s.logger.Warn("voice input failed", "kind", kind)
			if s.notify != nil {
				s.notify("voice input failed, please retry or type instead")
			}
		},
		OnEnd: func() {},
	}
}

// TakeInput drains and returns the pending dictated input.
func (s *Session) TakeInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.input
	s.input = ""
	return text
}

// PendingInput reports the dictated input without draining it.
func (s *Session) PendingInput() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}
