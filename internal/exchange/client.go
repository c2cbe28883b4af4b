// Package exchange delivers user messages to the remote agent endpoint and
// manages the request lifecycle: response-cache short circuit, per-attempt
// timeout, linear-backoff retry, and reply extraction.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"agentchat/internal/cache"
	"agentchat/internal/domain"
	"agentchat/internal/metrics"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = time.Second
)

// Attachment is a validated image riding along with a message. Ref points
// at the local copy produced by the attachment validator.
type Attachment struct {
	Filename string
	MIMEType string
	Ref      string
}

// Request carries everything needed for one exchange with the agent.
type Request struct {
	ConversationID string
	OwnerID        string
	AgentID        string
	Endpoint       string
	Text           string
	Attachment     *Attachment
}

// Config configures the exchange client.
type Config struct {
	Cache       *cache.ResponseCache
	Logger      *slog.Logger
	Timeout     time.Duration // per-attempt; a retry does not inherit time already spent
	MaxAttempts int
	Backoff     time.Duration // base delay; attempt n waits n*Backoff before retrying
	HTTPClient  *http.Client
}

// Client sends exchanges with at-least-once delivery plus client-side dedup
// through the response cache.
type Client struct {
	cache       *cache.ResponseCache
	logger      *slog.Logger
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	client      *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Cache == nil {
		cfg.Cache = cache.New(cache.DefaultCapacity)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Client{
		cache:       cfg.Cache,
		logger:      cfg.Logger,
		timeout:     cfg.Timeout,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		client:      cfg.HTTPClient,
	}
}

// Send resolves the reply for one user message. Text-only requests consult
// the response cache first and populate it on success; image-bearing
// requests always hit the network since the reply may depend on the image.
// Fails with *domain.ExchangeError after exhausting retries.
func (c *Client) Send(ctx context.Context, req Request) (string, error) {
	if req.Attachment == nil {
		if reply, ok := c.cache.Lookup(req.AgentID, req.Text); ok {
			metrics.CacheHits.Inc()
			c.logger.Debug("response cache hit", "agent", req.AgentID)
			return reply, nil
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := time.Duration(attempt-1) * c.backoff
			c.logger.Warn("exchange failed, retrying",
				"attempt", attempt, "backoff", wait, "err", lastErr)
			metrics.ExchangeRetries.Inc()
			select {
			case <-ctx.Done():
				// Callers surface ExchangeError text verbatim, so a backoff
				// cancellation reports the same way as exhausted retries.
				metrics.ExchangeFailures.Inc()
				return "", &domain.ExchangeError{Attempts: attempt - 1, Last: ctx.Err()}
			case <-time.After(wait):
			}
		}

		reply, err := c.attempt(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}

		if req.Attachment == nil {
			c.cache.Store(req.AgentID, req.Text, reply)
		}
		return reply, nil
	}

	metrics.ExchangeFailures.Inc()
	return "", &domain.ExchangeError{Attempts: c.maxAttempts, Last: lastErr}
}

// attempt performs a single delivery with its own fresh timeout.
func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.buildRequest(actx, req)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	metrics.ExchangesTotal.Inc()
	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("agent endpoint request: %w", err)
	}
	defer resp.Body.Close()
	metrics.ExchangeLatency.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	// Non-2xx counts as a transient failure for retry purposes.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("agent endpoint returned %d", resp.StatusCode)
	}

	return ExtractReply(body), nil
}

// buildRequest produces a JSON POST for text-only messages and a multipart
// POST with an image part when an attachment is present.
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	if req.Attachment == nil {
		payload, err := json.Marshal(map[string]string{
			"message":         req.Text,
			"chatbot_id":      req.AgentID,
			"user_id":         req.OwnerID,
			"conversation_id": req.ConversationID,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	writer.WriteField("message", req.Text)
	writer.WriteField("chatbot_id", req.AgentID)
	writer.WriteField("user_id", req.OwnerID)
	writer.WriteField("conversation_id", req.ConversationID)

	part, err := writer.CreateFormFile("image", req.Attachment.Filename)
	if err != nil {
		return nil, fmt.Errorf("create image part: %w", err)
	}
	file, err := os.Open(req.Attachment.Ref)
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	defer file.Close()
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy attachment: %w", err)
	}
	writer.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	return httpReq, nil
}
