package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"agentchat/internal/domain"
	"agentchat/internal/session"

	"github.com/gorilla/websocket"
)

// WebConfig configures the WebSocket gateway.
type WebConfig struct {
	Host     string
	Port     int
	Path     string // WebSocket endpoint path (default: /ws)
	Sessions *session.Manager
	Metrics  http.Handler // optional; mounted at /metrics when set
	Logger   *slog.Logger
}

// Web serves conversations over WebSocket. Each connection binds one
// (owner, agent) pair passed as query parameters.
type Web struct {
	host     string
	port     int
	path     string
	sessions *session.Manager
	metrics  http.Handler
	logger   *slog.Logger
	server   *http.Server
}

// Frame is the JSON protocol in both directions.
// Inbound types: "message", "retry", "clear".
// Outbound types: "status", "stream", "message", "error".
type Frame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local deployment; put a reverse proxy in front otherwise
	},
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Web{
		host:     cfg.Host,
		port:     cfg.Port,
		path:     cfg.Path,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Handler exposes the gateway mux for embedding and tests.
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(w.path, w.handleUpgrade)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	if w.metrics != nil {
		mux.Handle("/metrics", w.metrics)
	}
	return mux
}

// Start runs the HTTP server and blocks until context cancellation.
func (w *Web) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", w.host, w.port),
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.logger.Info("web gateway starting", "addr", w.server.Addr, "path", w.path)

	errCh := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (w *Web) handleUpgrade(rw http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	agentID := r.URL.Query().Get("agent")
	if ownerID == "" || agentID == "" {
		http.Error(rw, "owner and agent query parameters are required", http.StatusBadRequest)
		return
	}

	sess, err := w.sessions.Get(r.Context(), ownerID, agentID)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	w.logger.Info("client connected", "owner", ownerID, "agent", agentID)

	client := &wsWriter{conn: conn}
	client.send(Frame{Type: "status", Content: "connected"})

	// Replay history so a reconnecting client sees the conversation.
	for _, msg := range sess.Conversation().Messages {
		frameType := "message"
		if msg.DeliveryState == domain.StateFailed {
			frameType = "error"
		}
		client.send(Frame{Type: frameType, MessageID: msg.ID, Content: msg.Text})
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			w.logger.Warn("invalid frame", "err", err)
			client.send(Frame{Type: "error", Content: "invalid frame"})
			continue
		}

		switch frame.Type {
		case "message":
			events, err := sess.Send(ctx, frame.Content, nil)
			if err != nil {
				client.send(Frame{Type: "error", Content: err.Error()})
				continue
			}
			go w.forward(events, client)

		case "retry":
			events, err := sess.Retry(ctx)
			if err != nil {
				client.send(Frame{Type: "error", Content: err.Error()})
				continue
			}
			go w.forward(events, client)

		case "clear":
			if err := sess.Clear(ctx); err != nil {
				client.send(Frame{Type: "error", Content: err.Error()})
				continue
			}
			client.send(Frame{Type: "status", Content: "cleared"})

		default:
			w.logger.Debug("ignoring frame", "type", frame.Type)
		}
	}
}

// forward relays one reply stream to the client. Partials go out as
// "stream" frames; the terminal event becomes "message" or "error".
func (w *Web) forward(events <-chan domain.StreamEvent, client *wsWriter) {
	for ev := range events {
		switch ev.Type {
		case domain.StreamPartial:
			client.send(Frame{Type: "stream", MessageID: ev.MessageID, Content: ev.Content})
		case domain.StreamDone:
			client.send(Frame{Type: "message", MessageID: ev.MessageID, Content: ev.Content})
		case domain.StreamError:
			client.send(Frame{Type: "error", MessageID: ev.MessageID, Content: ev.Content})
		}
	}
}

// wsWriter serializes writes; gorilla connections allow one writer at a time.
type wsWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsWriter) send(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, data)
}
