// Package synthesis defines the speech-synthesis collaborator: a text
// stream plus voice/model selector in, a streaming audio+transcript
// sequence out. The service is external; this package carries the
// interface, a streaming HTTP client, and the chunk types.
package synthesis

import (
	"context"
)

// Chunk is one streamed piece of synthesized output: audio samples at the
// configured wire rate with the transcript fragment they voice.
type Chunk struct {
	Samples    []float64
	SampleRate int
	Transcript string
	Err        error
}

// Client is the interface the response orchestrator consumes.
type Client interface {
	// Synthesize consumes text segments until the channel closes and emits
	// audio chunks. The returned channel closes when synthesis ends or the
	// context is cancelled.
	Synthesize(ctx context.Context, text <-chan string, voice, model string) (<-chan Chunk, error)

	// Close releases client resources.
	Close() error
}
