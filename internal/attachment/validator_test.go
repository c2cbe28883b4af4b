package attachment

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"agentchat/internal/domain"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	v, err := NewValidator(Config{StoragePath: t.TempDir(), Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestValidate_AcceptsImage(t *testing.T) {
	v := testValidator(t)
	content := []byte("fake png bytes")
	ref, err := v.Validate(File{
		Name:     "photo.png",
		MIMEType: "image/png",
		Size:     int64(len(content)),
		Data:     bytes.NewReader(content),
	})
	if err != nil {
		t.Fatal(err)
	}
	staged, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("reference should point at a staged copy: %v", err)
	}
	if !bytes.Equal(staged, content) {
		t.Fatal("staged copy differs from input")
	}
}

func TestValidate_RejectsNonImage(t *testing.T) {
	v := testValidator(t)
	for _, mime := range []string{"application/pdf", "text/plain", "video/mp4", ""} {
		_, err := v.Validate(File{Name: "f", MIMEType: mime, Size: 10, Data: strings.NewReader("x")})
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Reason != "invalid-type" {
			t.Errorf("MIME %q: expected invalid-type, got %v", mime, err)
		}
	}
}

func TestValidate_RejectsOversizeDeclared(t *testing.T) {
	v := testValidator(t)
	_, err := v.Validate(File{
		Name:     "huge.png",
		MIMEType: "image/png",
		Size:     MaxImageBytes + 1,
		Data:     strings.NewReader("tiny"),
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "too-large" {
		t.Fatalf("expected too-large, got %v", err)
	}
}

func TestValidate_RejectsOversizeActual(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	v, err := NewValidator(Config{StoragePath: t.TempDir(), MaxBytes: 16, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	// Declared size is fine but the stream carries more.
	_, err = v.Validate(File{
		Name:     "liar.png",
		MIMEType: "image/png",
		Size:     10,
		Data:     strings.NewReader(strings.Repeat("x", 64)),
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Reason != "too-large" {
		t.Fatalf("expected too-large for oversized stream, got %v", err)
	}
}

func TestValidate_MIMECaseInsensitive(t *testing.T) {
	v := testValidator(t)
	_, err := v.Validate(File{
		Name:     "photo.JPG",
		MIMEType: "IMAGE/JPEG",
		Size:     4,
		Data:     strings.NewReader("data"),
	})
	if err != nil {
		t.Fatalf("uppercase image MIME should pass: %v", err)
	}
}
