// Package stream reveals a complete agent reply to the UI word by word,
// emulating live generation without true token streaming from the server.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"agentchat/internal/metrics"
)

// Partial is one emission of a running reveal. Intermediate partials are
// strict word-count prefixes; the final one carries the full text verbatim
// with Done set.
type Partial struct {
	MessageID string
	Text      string
	Done      bool
}

// Config configures the presenter.
type Config struct {
	Logger *slog.Logger
	// Delay computes the pause before each word from the reply's total word
	// count. Defaults to WordDelay; tests inject something faster.
	Delay func(wordCount int) time.Duration
}

// Presenter runs at most one reveal per message id. Cancellation is
// cooperative: it is checked before every emission, so a discarded message
// never receives stray writes.
type Presenter struct {
	logger *slog.Logger
	delay  func(int) time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func New(cfg Config) *Presenter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Delay == nil {
		cfg.Delay = WordDelay
	}
	return &Presenter{
		logger: cfg.Logger,
		delay:  cfg.Delay,
		active: make(map[string]context.CancelFunc),
	}
}

// WordDelay is the adaptive per-word pause: longer replies stream slightly
// faster per word, bounded to [30ms, 120ms].
func WordDelay(wordCount int) time.Duration {
	ms := 80 - wordCount/15
	if ms < 30 {
		ms = 30
	}
	if ms > 120 {
		ms = 120
	}
	return time.Duration(ms) * time.Millisecond
}

// Present starts the reveal for a message and returns the channel of
// partials. The channel is closed after the final emission or on
// cancellation. A message id with a reveal already running is an error.
func (p *Presenter) Present(ctx context.Context, messageID, fullText string) (<-chan Partial, error) {
	p.mu.Lock()
	if _, dup := p.active[messageID]; dup {
		p.mu.Unlock()
		return nil, fmt.Errorf("stream already active for message %s", messageID)
	}
	ctx, cancel := context.WithCancel(ctx)
	p.active[messageID] = cancel
	p.mu.Unlock()

	metrics.StreamsStarted.Inc()
	metrics.ActiveStreams.Inc()

	out := make(chan Partial)
	go p.run(ctx, messageID, fullText, out)
	return out, nil
}

// Cancel stops a running reveal. Safe to call for unknown ids.
func (p *Presenter) Cancel(messageID string) {
	p.mu.Lock()
	cancel, ok := p.active[messageID]
	p.mu.Unlock()
	if ok {
		p.logger.Debug("stream cancelled", "message_id", messageID)
		cancel()
	}
}

// CancelAll stops every running reveal, used when a conversation is
// cleared or the owning component is torn down.
func (p *Presenter) CancelAll() {
	p.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(p.active))
	for _, cancel := range p.active {
		cancels = append(cancels, cancel)
	}
	p.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (p *Presenter) run(ctx context.Context, messageID, fullText string, out chan<- Partial) {
	defer func() {
		close(out)
		p.mu.Lock()
		if cancel, ok := p.active[messageID]; ok {
			delete(p.active, messageID)
			cancel()
		}
		p.mu.Unlock()
		metrics.ActiveStreams.Dec()
	}()

	words := strings.Fields(fullText)
	if len(words) == 0 {
		p.emit(ctx, out, Partial{MessageID: messageID, Text: fullText, Done: true})
		return
	}

	delay := p.delay(len(words))
	var b strings.Builder
	for i, word := range words {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if i < len(words)-1 {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(word)
			if !p.emit(ctx, out, Partial{MessageID: messageID, Text: b.String()}) {
				return
			}
			continue
		}

		// Final emission carries the original text verbatim.
		p.emit(ctx, out, Partial{MessageID: messageID, Text: fullText, Done: true})
	}
}

func (p *Presenter) emit(ctx context.Context, out chan<- Partial, partial Partial) bool {
	select {
	case out <- partial:
		return true
	case <-ctx.Done():
		return false
	}
}
