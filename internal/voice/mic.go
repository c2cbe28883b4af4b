package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const defaultUtteranceSeconds = 8

// MicSource captures one utterance from the default ALSA device by shelling
// out to arecord. Capture stops after the configured window; silence
// trimming is left to the transcription service.
type MicSource struct {
	seconds int
	logger  *slog.Logger
}

type MicConfig struct {
	UtteranceSeconds int
	Logger           *slog.Logger
}

// NewMicSource returns the capture source, or nil when no recorder binary is
// available on this host.
func NewMicSource(cfg MicConfig) *MicSource {
	if _, err := exec.LookPath("arecord"); err != nil {
		return nil
	}
	if cfg.UtteranceSeconds <= 0 {
		cfg.UtteranceSeconds = defaultUtteranceSeconds
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MicSource{seconds: cfg.UtteranceSeconds, logger: cfg.Logger}
}

func (m *MicSource) Record(ctx context.Context) (io.Reader, string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(m.seconds+5)*time.Second)
	defer cancel()

	m.logger.Debug("recording utterance", "seconds", m.seconds)
	cmd := exec.CommandContext(ctx, "arecord",
		"-q",
		"-f", "S16_LE",
		"-r", "16000",
		"-c", "1",
		"-t", "wav",
		"-d", fmt.Sprintf("%d", m.seconds),
		"-")

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("audio capture: %w", err)
	}
	return bytes.NewReader(out), "utterance.wav", nil
}

var _ AudioSource = (*MicSource)(nil)
