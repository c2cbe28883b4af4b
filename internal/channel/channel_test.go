package channel

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentchat/internal/cache"
	"agentchat/internal/conversation"
	"agentchat/internal/exchange"
	"agentchat/internal/fallback"
	"agentchat/internal/session"
	"agentchat/internal/storage"
	"agentchat/internal/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newSessionManager wires a manager against an on-disk store pair and a stub
// agent endpoint serving the given handler.
func newSessionManager(t *testing.T, handler http.HandlerFunc) *session.Manager {
	t.Helper()
	logger := testLogger()
	dir := t.TempDir()

	durable, err := storage.NewSQLiteStore(filepath.Join(dir, "conversations.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { durable.Close() })
	fb, err := fallback.NewFileStore(filepath.Join(dir, "snapshots"), logger)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return session.NewManager(session.ManagerConfig{
		Exchange: exchange.NewClient(exchange.Config{
			Cache:   cache.New(cache.DefaultCapacity),
			Logger:  logger,
			Backoff: time.Millisecond,
			Timeout: 5 * time.Second,
		}),
		Store:     conversation.New(durable, fb, logger),
		Presenter: stream.New(stream.Config{Logger: logger, Delay: func(int) time.Duration { return time.Millisecond }}),
		Endpoint:  func(agentID string) (string, error) { return srv.URL, nil },
		Logger:    logger,
	})
}

func echoAgent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"echo reply"}`))
	}
}
