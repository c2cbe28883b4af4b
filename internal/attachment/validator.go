// Package attachment validates a picked image before it is attached to an
// outbound message and stages a local copy for optimistic display.
package attachment

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"agentchat/internal/domain"

	"github.com/google/uuid"
)

// MaxImageBytes is the chat-attachment size ceiling. The file-directory
// upload path elsewhere uses its own larger limit.
const MaxImageBytes = 5 << 20 // 5 MiB

// File is a picked file as supplied by the picker collaborator.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Data     io.Reader
}

// Config configures the validator.
type Config struct {
	StoragePath string // directory for staged copies
	MaxBytes    int64  // defaults to MaxImageBytes
	Logger      *slog.Logger
}

// Validator checks MIME type and size, then stages an accepted image on
// local disk. The returned path is the opaque attachment reference.
type Validator struct {
	storagePath string
	maxBytes    int64
	logger      *slog.Logger
}

func NewValidator(cfg Config) (*Validator, error) {
	if cfg.StoragePath == "" {
		home, _ := os.UserHomeDir()
		cfg.StoragePath = filepath.Join(home, ".agentchat", "attachments")
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment storage: %w", err)
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = MaxImageBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Validator{
		storagePath: cfg.StoragePath,
		maxBytes:    cfg.MaxBytes,
		logger:      cfg.Logger,
	}, nil
}

// Validate accepts an image file and returns its local reference, or a
// *domain.ValidationError describing why it was rejected.
func (v *Validator) Validate(file File) (string, error) {
	mime := strings.ToLower(strings.TrimSpace(file.MIMEType))
	if !strings.HasPrefix(mime, "image/") {
		return "", &domain.ValidationError{Reason: "invalid-type"}
	}
	if file.Size > v.maxBytes {
		return "", &domain.ValidationError{Reason: "too-large"}
	}

	ref := filepath.Join(v.storagePath, uuid.NewString()+filepath.Ext(file.Name))
	out, err := os.Create(ref)
	if err != nil {
		return "", fmt.Errorf("stage attachment: %w", err)
	}

	// The declared size may lie; recheck while copying.
	written, err := io.Copy(out, io.LimitReader(file.Data, v.maxBytes+1))
	out.Close()
	if err != nil {
		os.Remove(ref)
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if written > v.maxBytes {
		os.Remove(ref)
		return "", &domain.ValidationError{Reason: "too-large"}
	}

	v.logger.Info("attachment staged",
		"name", file.Name,
		"mime_type", mime,
		"size", written,
	)
	return ref, nil
}
