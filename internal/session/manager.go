package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"agentchat/internal/attachment"
	"agentchat/internal/conversation"
	"agentchat/internal/exchange"
	"agentchat/internal/stream"
)

// EndpointResolver maps an agent id to its exchange endpoint URL.
type EndpointResolver func(agentID string) (string, error)

// ManagerConfig carries the shared collaborators every session composes.
type ManagerConfig struct {
	Exchange  *exchange.Client
	Store     *conversation.Store
	Presenter *stream.Presenter
	Validator *attachment.Validator
	Endpoint  EndpointResolver
	Notify    func(text string)
	Logger    *slog.Logger
}

// Manager hands out one Session per (owner, agent) pair, creating it on
// first use. Concurrent callers for the same pair get the same session.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for the pair, creating and loading it if needed.
func (m *Manager) Get(ctx context.Context, ownerID, agentID string) (*Session, error) {
	key := ownerID + "\x00" + agentID

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}

	endpoint, err := m.cfg.Endpoint(agentID)
	if err != nil {
		return nil, fmt.Errorf("resolve agent %q: %w", agentID, err)
	}

	s := New(ctx, Config{
		OwnerID:   ownerID,
		AgentID:   agentID,
		Endpoint:  endpoint,
		Exchange:  m.cfg.Exchange,
		Store:     m.cfg.Store,
		Presenter: m.cfg.Presenter,
		Validator: m.cfg.Validator,
		Notify:    m.cfg.Notify,
		Logger:    m.cfg.Logger.With("owner", ownerID, "agent", agentID),
	})
	m.sessions[key] = s
	m.cfg.Logger.Info("session opened", "owner", ownerID, "agent", agentID)
	return s, nil
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
