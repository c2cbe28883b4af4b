package domain

// StreamEventType classifies an event on a reply stream.
type StreamEventType string

const (
	StreamPartial StreamEventType = "partial"
	StreamDone    StreamEventType = "done"
	StreamError   StreamEventType = "error"
)

// StreamEvent is one step of the simulated live-typing reveal of an agent
// reply, or the terminal failure for a send that exhausted its retries.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	MessageID string          `json:"message_id"`
	Content   string          `json:"content"`
}
