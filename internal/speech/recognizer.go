// Package speech owns the persistent connection to the streaming
// speech-recognition provider for one conversation session: connect and
// reconnect, inactivity timeout, keep-alive silence injection, and the
// turn-completion race between upstream exhaustion and the provider's
// final transcript.
package speech

import (
	"context"
	"errors"
	"time"
)

// EventType identifies a recognizer event.
type EventType int

const (
	// EventSpeechStarted signals the provider detected start of speech.
	EventSpeechStarted EventType = iota
	// EventPartial carries an interim transcript fragment.
	EventPartial
	// EventFinal carries a final transcript marking end of turn.
	EventFinal
	// EventClosed signals the provider connection is gone.
	EventClosed
	// EventError carries a provider-level failure.
	EventError
)

// Event is one message from the recognition provider.
type Event struct {
	Type       EventType
	Transcript string
	Err        error
}

// Connection describes a live provider connection.
type Connection struct {
	ProviderSessionID string
	ExpiresAt         time.Time
}

// Recognizer abstracts the streaming recognition provider so the session
// logic can be exercised against a scripted fake in tests.
type Recognizer interface {
	// Connect opens a streaming connection. Safe to call again after the
	// connection has closed or expired.
	Connect(ctx context.Context) (Connection, error)

	// WriteAudio forwards little-endian PCM16 audio at the provider rate.
	WriteAudio(pcm []byte) error

	// Events returns the provider message stream.
	Events() <-chan Event

	// Open reports whether the underlying connection is usable.
	Open() bool

	// Close tears the connection down.
	Close() error
}

// ErrTurnAbandoned is returned when the upstream stream is exhausted and no
// final transcript arrives within the grace window.
var ErrTurnAbandoned = errors.New("turn abandoned: no final transcript before grace window elapsed")

// ErrNoSpeech is returned when a turn produced no transcribable speech.
// Expected outcome of silence; suppressed rather than surfaced to clients.
var ErrNoSpeech = errors.New("no transcribable speech in turn")
