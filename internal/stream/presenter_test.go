package stream

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func fastPresenter() *Presenter {
	return New(Config{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Delay:  func(int) time.Duration { return time.Millisecond },
	})
}

func collect(t *testing.T, ch <-chan Partial) []Partial {
	t.Helper()
	var parts []Partial
	for p := range ch {
		parts = append(parts, p)
	}
	return parts
}

func TestPresent_Fidelity(t *testing.T) {
	texts := []string{
		"Hi there",
		"one",
		"a somewhat longer reply with several words in it",
	}
	p := fastPresenter()
	for _, text := range texts {
		ch, err := p.Present(context.Background(), "msg-"+text, text)
		if err != nil {
			t.Fatal(err)
		}
		parts := collect(t, ch)
		if len(parts) == 0 {
			t.Fatalf("no partials for %q", text)
		}
		last := parts[len(parts)-1]
		if !last.Done {
			t.Fatalf("last partial not marked done for %q", text)
		}
		if last.Text != text {
			t.Fatalf("final partial %q != original %q", last.Text, text)
		}
		wantParts := len(strings.Fields(text))
		if len(parts) != wantParts {
			t.Fatalf("expected %d partials for %q, got %d", wantParts, text, len(parts))
		}
	}
}

func TestPresent_PartialsAreWordPrefixes(t *testing.T) {
	text := "alpha beta gamma delta"
	p := fastPresenter()
	ch, err := p.Present(context.Background(), "msg-1", text)
	if err != nil {
		t.Fatal(err)
	}
	parts := collect(t, ch)
	for i, part := range parts {
		words := strings.Fields(part.Text)
		if len(words) != i+1 {
			t.Errorf("partial %d has %d words, want %d", i, len(words), i+1)
		}
		if !strings.HasPrefix(text, words[0]) {
			t.Errorf("partial %d does not start the original text: %q", i, part.Text)
		}
	}
}

func TestPresent_EmptyText(t *testing.T) {
	p := fastPresenter()
	ch, err := p.Present(context.Background(), "msg-1", "")
	if err != nil {
		t.Fatal(err)
	}
	parts := collect(t, ch)
	if len(parts) != 1 || !parts[0].Done || parts[0].Text != "" {
		t.Fatalf("expected single empty done partial, got %+v", parts)
	}
}

func TestPresent_DuplicateStreamRejected(t *testing.T) {
	p := New(Config{Delay: func(int) time.Duration { return 50 * time.Millisecond }})
	long := strings.Repeat("word ", 100)
	ch, err := p.Present(context.Background(), "msg-1", long)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Present(context.Background(), "msg-1", "other"); err == nil {
		t.Fatal("second stream for same message id should be rejected")
	}
	p.Cancel("msg-1")
	collect(t, ch)
}

func TestPresent_CancelStopsEmissions(t *testing.T) {
	p := New(Config{Delay: func(int) time.Duration { return 10 * time.Millisecond }})
	long := strings.Repeat("word ", 200)
	ch, err := p.Present(context.Background(), "msg-1", long)
	if err != nil {
		t.Fatal(err)
	}

	<-ch // at least one partial got out
	p.Cancel("msg-1")

	parts := collect(t, ch)
	for _, part := range parts {
		if part.Done {
			t.Fatal("cancelled stream must not deliver a done partial")
		}
	}
	// The id is free again after cancellation.
	deadline := time.Now().Add(time.Second)
	for {
		ch2, err := p.Present(context.Background(), "msg-1", "fresh")
		if err == nil {
			collect(t, ch2)
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("message id never freed after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPresent_ContextCancellation(t *testing.T) {
	p := New(Config{Delay: func(int) time.Duration { return 10 * time.Millisecond }})
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := p.Present(ctx, "msg-1", strings.Repeat("word ", 100))
	if err != nil {
		t.Fatal(err)
	}
	<-ch
	cancel()
	parts := collect(t, ch)
	if len(parts) >= 99 {
		t.Fatal("stream should have stopped early")
	}
}

func TestWordDelay_Clamped(t *testing.T) {
	tests := []struct {
		words int
		want  time.Duration
	}{
		{1, 80 * time.Millisecond},    // 80 - 0
		{15, 79 * time.Millisecond},   // 80 - 1
		{300, 60 * time.Millisecond},  // 80 - 20
		{5000, 30 * time.Millisecond}, // clamped at floor
	}
	for _, tt := range tests {
		if got := WordDelay(tt.words); got != tt.want {
			t.Errorf("WordDelay(%d) = %v, want %v", tt.words, got, tt.want)
		}
	}
}
