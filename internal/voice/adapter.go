// Package voice wraps the speech-recognition capability behind the
// start/stop/result contract. The capability is optional per environment:
// callers decide once at startup between a real adapter and Unsupported.
package voice

import (
	"context"

	"agentchat/internal/domain"
)

// Unsupported is the adapter for environments without a speech-recognition
// facility. Start and Stop are no-ops.
type Unsupported struct{}

func NewUnsupported() *Unsupported { return &Unsupported{} }

func (u *Unsupported) Supported() bool                { return false }
func (u *Unsupported) Start(ctx context.Context) error { return nil }
func (u *Unsupported) Stop()                          {}

var _ domain.VoiceInput = (*Unsupported)(nil)
