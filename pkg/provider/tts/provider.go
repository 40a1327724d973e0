// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server,
// ElevenLabs) and turns one utterance of text into raw PCM audio. Lesson
// feedback is short, so synthesis is batch rather than streaming: the speech
// queue needs the whole utterance (and its duration) before it can play it.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as 16-bit little-endian PCM using the voice
	// described by opts. Returns an error if the service cannot be reached,
	// the voice is unknown, or ctx is cancelled.
	Synthesize(ctx context.Context, text string, opts Options) (Audio, error)

	// ListVoices returns the voices available from this provider, optionally
	// filtered by language (empty means all).
	ListVoices(ctx context.Context, language string) ([]Voice, error)
}
