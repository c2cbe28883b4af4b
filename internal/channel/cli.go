// Package channel hosts the user-facing surfaces: an interactive terminal
// REPL and a WebSocket gateway. Channels own presentation only; the
// conversation flow lives in the session package.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"agentchat/internal/attachment"
	"agentchat/internal/domain"
	"agentchat/internal/session"
	"agentchat/internal/voice"
)

// CLI is the interactive terminal surface for one conversation.
type CLI struct {
	session *session.Session
	voice   domain.VoiceInput
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
}

type CLIConfig struct {
	Session *session.Session
	Voice   domain.VoiceInput
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Voice == nil {
		cfg.Voice = voice.NewUnsupported()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		session: cfg.Session,
		voice:   cfg.Voice,
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
	}
}

// Start runs the REPL and blocks until /quit, EOF, or context cancellation.
func (c *CLI) Start(ctx context.Context) error {
	c.printHistory()
	fmt.Fprintln(c.out, "Type a message and press Enter. /help lists commands.")
	fmt.Fprint(c.out, "You> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			// An empty line flushes pending dictated input, if any.
			if text := c.session.TakeInput(); text != "" {
				c.deliver(ctx, text, nil)
			}
		case line == "/quit" || line == "/exit" || line == "/q":
			c.logger.Info("user requested quit")
			return nil
		case line == "/help":
			c.printHelp()
		case line == "/clear":
			if err := c.session.Clear(ctx); err != nil {
				fmt.Fprintf(c.out, "clear failed: %v\n", err)
			} else {
				fmt.Fprintln(c.out, "conversation cleared")
			}
		case line == "/retry":
			events, err := c.session.Retry(ctx)
			if err != nil {
				fmt.Fprintf(c.out, "%v\n", err)
			} else {
				c.render(events)
			}
		case line == "/voice":
			c.startVoice(ctx)
		case strings.HasPrefix(line, "/attach "):
			c.attach(ctx, strings.TrimPrefix(line, "/attach "))
		case strings.HasPrefix(line, "/"):
			fmt.Fprintf(c.out, "unknown command %s\n", line)
		default:
			c.deliver(ctx, line, nil)
		}
		fmt.Fprint(c.out, "You> ")
	}
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "/clear          start a fresh conversation")
	fmt.Fprintln(c.out, "/retry          resend the last failed message")
	fmt.Fprintln(c.out, "/attach <path> [caption]  send an image")
	fmt.Fprintln(c.out, "/voice          dictate a message (empty line sends it)")
	fmt.Fprintln(c.out, "/quit           exit")
}

func (c *CLI) printHistory() {
	conv := c.session.Conversation()
	for _, msg := range conv.Messages {
		prefix := "Agent"
		if msg.Role == domain.RoleUser {
			prefix = "You"
		}
		fmt.Fprintf(c.out, "%s> %s\n", prefix, msg.Text)
	}
}

func (c *CLI) deliver(ctx context.Context, text string, file *attachment.File) {
	events, err := c.session.Send(ctx, text, file)
	if err != nil {
		fmt.Fprintf(c.out, "%v\n", err)
		return
	}
	c.render(events)
}

// render consumes one reply stream, rewriting the agent line in place as
// partials arrive.
func (c *CLI) render(events <-chan domain.StreamEvent) {
	for ev := range events {
		switch ev.Type {
		case domain.StreamPartial:
			fmt.Fprintf(c.out, "\r\033[KAgent> %s", ev.Content)
		case domain.StreamDone:
			fmt.Fprintf(c.out, "\r\033[KAgent> %s\n", ev.Content)
		case domain.StreamError:
			fmt.Fprintf(c.out, "\r\033[K%s (/retry to resend)\n", ev.Content)
		}
	}
}

func (c *CLI) startVoice(ctx context.Context) {
	if !c.voice.Supported() {
		fmt.Fprintln(c.out, "voice input is not available here, please type instead")
		return
	}
	if err := c.voice.Start(ctx); err != nil {
		fmt.Fprintf(c.out, "voice input failed to start: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "listening... press Enter on an empty line to send the transcript")
}

func (c *CLI) attach(ctx context.Context, args string) {
	path, caption, _ := strings.Cut(args, " ")
	path = strings.TrimSpace(path)
	caption = strings.TrimSpace(caption)
	if path == "" {
		fmt.Fprintln(c.out, "usage: /attach <path> [caption]")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(c.out, "cannot open %s: %v\n", path, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fmt.Fprintf(c.out, "cannot stat %s: %v\n", path, err)
		return
	}

	c.deliver(ctx, caption, &attachment.File{
		Name:     filepath.Base(path),
		MIMEType: mime.TypeByExtension(filepath.Ext(path)),
		Size:     info.Size(),
		Data:     f,
	})
}
