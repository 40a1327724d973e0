// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a streaming recogniser (a local Vosk server in the
// default setup) and exposes a uniform session abstraction: once opened, a
// [SessionHandle] accepts raw 16-bit PCM audio and emits low-latency partial
// transcripts and authoritative finals. Sessions can be restricted to a small
// grammar (the letters of the current lesson) which drastically improves
// recognition of single spoken letters.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional session operations the backend
// cannot perform.
var ErrNotSupported = errors.New("stt: operation not supported")

// UnknownToken is the grammar entry that absorbs out-of-vocabulary speech.
const UnknownToken = "[unk]"

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Defaults to 16000.
	SampleRate int

	// Language is the BCP-47 tag of the expected speech.
	Language string

	// Grammar restricts recognition to these words. Empty means free speech.
	Grammar []string

	// PhonemeMode asks the backend to report phonemes instead of words.
	PhonemeMode bool
}

// SessionHandle represents an open streaming session. Callers must call Close
// when done. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM audio. Calling it after Close returns
	// an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// SetGrammar replaces the recognition grammar without restarting the
	// session. Backends without grammar support return ErrNotSupported.
	SetGrammar(words []string) error

	// Close ends the session and releases its resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new session. The caller owns the returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
