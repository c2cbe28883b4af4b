package channel

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestCLI_SendAndQuit(t *testing.T) {
	mgr := newSessionManager(t, echoAgent())
	sess, err := mgr.Get(context.Background(), "owner-1", "agent-1")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Session: sess,
		Logger:  testLogger(),
		In:      strings.NewReader("hello\n/quit\n"),
		Out:     &out,
	})

	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "echo reply") {
		t.Fatalf("reply not rendered, output:\n%s", out.String())
	}

	conv := sess.Conversation()
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
}

func TestCLI_ClearCommand(t *testing.T) {
	mgr := newSessionManager(t, echoAgent())
	sess, err := mgr.Get(context.Background(), "owner-1", "agent-1")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Session: sess,
		Logger:  testLogger(),
		In:      strings.NewReader("hello\n/clear\n/quit\n"),
		Out:     &out,
	})
	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(out.String(), "conversation cleared") {
		t.Fatalf("clear confirmation missing:\n%s", out.String())
	}
	if got := len(sess.Conversation().Messages); got != 0 {
		t.Fatalf("conversation should be empty after clear, got %d messages", got)
	}
}

func TestCLI_VoiceUnavailable(t *testing.T) {
	mgr := newSessionManager(t, echoAgent())
	sess, err := mgr.Get(context.Background(), "owner-1", "agent-1")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Session: sess,
		Logger:  testLogger(),
		In:      strings.NewReader("/voice\n/quit\n"),
		Out:     &out,
	})
	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "not available") {
		t.Fatalf("expected unavailable notice:\n%s", out.String())
	}
}

func TestCLI_EmptyLineFlushesDictation(t *testing.T) {
	mgr := newSessionManager(t, echoAgent())
	sess, err := mgr.Get(context.Background(), "owner-1", "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	sess.VoiceEvents().OnResult("dictated text")

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Session: sess,
		Logger:  testLogger(),
		In:      strings.NewReader("\n/quit\n"),
		Out:     &out,
	})
	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	conv := sess.Conversation()
	if len(conv.Messages) != 2 || conv.Messages[0].Text != "dictated text" {
		t.Fatalf("dictated input not sent: %+v", conv.Messages)
	}
}

func TestCLI_UnknownCommand(t *testing.T) {
	mgr := newSessionManager(t, echoAgent())
	sess, err := mgr.Get(context.Background(), "owner-1", "agent-1")
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cli := NewCLI(CLIConfig{
		Session: sess,
		Logger:  testLogger(),
		In:      strings.NewReader("/bogus\n/quit\n"),
		Out:     &out,
	})
	if err := cli.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Fatalf("expected unknown command notice:\n%s", out.String())
	}
}
