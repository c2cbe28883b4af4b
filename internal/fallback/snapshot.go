// Package fallback keeps a same-device snapshot of each conversation so the
// chat can degrade gracefully when the durable backend is unreachable. It is
// best-effort cache, never the store of record.
package fallback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"agentchat/internal/domain"
)

// FileStore implements domain.FallbackStore as one JSON file per
// (owner, agent) pair under a local directory.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fallback directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Key returns the stable snapshot key for a pair.
func Key(ownerID, agentID string) string {
	return "chat_" + agentID + "_" + ownerID
}

func (f *FileStore) path(ownerID, agentID string) string {
	return filepath.Join(f.dir, Key(ownerID, agentID)+".json")
}

// LoadSnapshot returns the stored snapshot for the pair, if any.
func (f *FileStore) LoadSnapshot(ownerID, agentID string) (*domain.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(ownerID, agentID))
	if err != nil {
		return nil, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		f.logger.Warn("corrupt fallback snapshot ignored",
			"owner", ownerID, "agent", agentID, "err", err)
		return nil, false
	}
	return &snap, true
}

// SaveSnapshot overwrites the pair's snapshot with the given state.
func (f *FileStore) SaveSnapshot(ownerID, agentID string, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.path(ownerID, agentID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
