package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"agentchat/internal/domain"
)

// AudioSource captures one utterance of audio. Non-continuous: each Start
// records a single utterance and stops.
type AudioSource interface {
	// Record returns the captured audio and a filename whose extension
	// identifies the container format (e.g. "utterance.ogg").
	Record(ctx context.Context) (io.Reader, string, error)
}

// WhisperConfig configures the Whisper-backed voice adapter.
type WhisperConfig struct {
	APIBase  string // OpenAI-compatible base, e.g. "https://api.groq.com/openai/v1"
	APIKey   string
	Model    string // e.g. "whisper-large-v3"
	Language string // ISO-639-1; defaults to "pt" for the pt-BR deployment
	Source   AudioSource
	Events   domain.VoiceEvents
	Logger   *slog.Logger
}

// WhisperAdapter implements domain.VoiceInput against an OpenAI-compatible
// transcription endpoint. Each recognized utterance replaces the input
// buffer through Events.OnResult; OnEnd fires on every path back to idle.
type WhisperAdapter struct {
	apiBase  string
	apiKey   string
	model    string
	language string
	source   AudioSource
	events   domain.VoiceEvents
	client   *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewWhisper(cfg WhisperConfig) *WhisperAdapter {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.Language == "" {
		cfg.Language = "pt"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WhisperAdapter{
		apiBase:  cfg.APIBase,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		source:   cfg.Source,
		events:   cfg.Events,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   cfg.Logger,
	}
}

func (w *WhisperAdapter) Supported() bool {
	return w.source != nil && w.apiKey != ""
}

// Start captures and transcribes a single utterance in the background.
// Calling Start while an activation is running is a no-op, as is calling it
// on an unsupported adapter.
func (w *WhisperAdapter) Start(ctx context.Context) error {
	if !w.Supported() {
		return nil
	}

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	go w.listen(ctx)
	return nil
}

// Stop aborts the in-flight activation, if any.
func (w *WhisperAdapter) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *WhisperAdapter) listen(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.cancel = nil
		w.mu.Unlock()
		if w.events.OnEnd != nil {
			w.events.OnEnd()
		}
	}()

	audio, filename, err := w.source.Record(ctx)
	if err != nil {
		w.fail(classify(err, domain.AudioFailed))
		return
	}

	text, err := w.transcribe(ctx, audio, filename)
	if err != nil {
		w.fail(classify(err, domain.NetworkDown))
		return
	}
	if text == "" {
		// Nothing was said; suppressed from user-facing notification
		// by the caller.
		w.fail(domain.NoSpeech)
		return
	}

	w.logger.Info("utterance recognized", "text_len", len(text))
	if w.events.OnResult != nil {
		w.events.OnResult(text)
	}
}

func (w *WhisperAdapter) fail(kind string) {
	if kind != domain.NoSpeech {
		w.logger.Warn("speech recognition failed", "kind", kind)
	}
	if w.events.OnError != nil {
		w.events.OnError(kind)
	}
}

func classify(err error, fallback string) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Aborted
	}
	return fallback
}

type transcription struct {
	Text string `json:"text"`
}

func (w *WhisperAdapter) transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "json")
	writer.WriteField("language", w.language)
	writer.Close()

	url := w.apiBase + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result transcription
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	return result.Text, nil
}

var _ domain.VoiceInput = (*WhisperAdapter)(nil)
