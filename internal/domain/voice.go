package domain

import "context"

// VoiceInput wraps the platform speech-recognition capability. The
// capability is optional: implementations report Supported once at
// construction and Start/Stop are no-ops when it is absent.
type VoiceInput interface {
	Supported() bool
	// Start begins capturing a single utterance. Recognized text (interim
	// or final) is delivered through the events registered at construction;
	// each result replaces the current input buffer rather than appending.
	Start(ctx context.Context) error
	Stop()
}

// VoiceEvents receives recognition callbacks. OnEnd fires exactly once per
// activation, success or failure, returning the adapter to idle.
type VoiceEvents struct {
	OnResult func(text string)
	OnError  func(kind string)
	OnEnd    func()
}
