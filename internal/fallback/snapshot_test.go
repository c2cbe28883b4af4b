package fallback

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentchat/internal/domain"
)

func testFileStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewFileStore(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	return store, dir
}

func TestKey(t *testing.T) {
	if got := Key("owner-1", "agent-1"); got != "chat_agent-1_owner-1" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestLoadSnapshot_Missing(t *testing.T) {
	store, _ := testFileStore(t)
	if _, ok := store.LoadSnapshot("owner-1", "agent-1"); ok {
		t.Fatal("expected no snapshot")
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	store, _ := testFileStore(t)
	snap := domain.Snapshot{
		ConversationID: "conv-1",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Text: "hello", DeliveryState: domain.StateSent},
		},
		SavedAt: time.Now().UTC(),
	}
	if err := store.SaveSnapshot("owner-1", "agent-1", snap); err != nil {
		t.Fatal(err)
	}

	loaded, ok := store.LoadSnapshot("owner-1", "agent-1")
	if !ok {
		t.Fatal("expected snapshot")
	}
	if loaded.ConversationID != "conv-1" || len(loaded.Messages) != 1 {
		t.Fatalf("snapshot lost data: %+v", loaded)
	}
	if loaded.Messages[0].Text != "hello" {
		t.Fatalf("message text lost: %+v", loaded.Messages[0])
	}
}

func TestSaveSnapshot_Overwrites(t *testing.T) {
	store, _ := testFileStore(t)
	first := domain.Snapshot{ConversationID: "conv-1", SavedAt: time.Now()}
	second := domain.Snapshot{ConversationID: "conv-2", SavedAt: time.Now()}
	if err := store.SaveSnapshot("owner-1", "agent-1", first); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot("owner-1", "agent-1", second); err != nil {
		t.Fatal(err)
	}
	loaded, ok := store.LoadSnapshot("owner-1", "agent-1")
	if !ok || loaded.ConversationID != "conv-2" {
		t.Fatalf("expected conv-2, got %+v", loaded)
	}
}

func TestSnapshot_PairScoping(t *testing.T) {
	store, _ := testFileStore(t)
	snap := domain.Snapshot{ConversationID: "conv-1", SavedAt: time.Now()}
	if err := store.SaveSnapshot("owner-1", "agent-1", snap); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.LoadSnapshot("owner-1", "agent-2"); ok {
		t.Fatal("snapshots must not leak across agents")
	}
	if _, ok := store.LoadSnapshot("owner-2", "agent-1"); ok {
		t.Fatal("snapshots must not leak across owners")
	}
}

func TestCorruptSnapshotIgnored(t *testing.T) {
	store, dir := testFileStore(t)
	path := filepath.Join(dir, Key("owner-1", "agent-1")+".json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.LoadSnapshot("owner-1", "agent-1"); ok {
		t.Fatal("corrupt snapshot should read as absent")
	}
}
