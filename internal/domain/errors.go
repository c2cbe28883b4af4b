package domain

import "fmt"

// ExchangeError reports a delivery failure: retries exhausted, or the send
// cancelled between attempts. Recoverable: the caller may resubmit the same
// message.
type ExchangeError struct {
	Attempts int
	Last     error
}

func (e *ExchangeError) Error() string { return "connection failed" }

func (e *ExchangeError) Unwrap() error { return e.Last }

// ValidationError rejects a picked attachment before it ever leaves the
// device. Reason is one of "invalid-type" or "too-large".
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "attachment rejected: " + e.Reason }

// PersistenceError wraps a durable-store failure. During load/save it
// degrades to the local fallback; during clear it is surfaced to the user.
type PersistenceError struct {
	Op  string // "load" | "save" | "clear"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("durable store %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RecognitionError reports a voice-input failure. NoSpeech is suppressed
// from user-facing notification; every other kind is recoverable.
type RecognitionError struct {
	Kind string
}

const (
	NoSpeech    = "no-speech"
	Aborted     = "aborted"
	AudioFailed = "audio"
	NetworkDown = "network"
)

func (e *RecognitionError) Error() string { return "speech recognition failed: " + e.Kind }
