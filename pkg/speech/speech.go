// Package speech serialises spoken feedback so that at most one utterance is
// audible at a time.
//
// A [Queue] plays utterances in FIFO submission order through a [Backend].
// Every [Queue.Speak] call returns a channel that receives exactly one
// [Outcome] once the utterance has finished (or was dropped by
// [Queue.Cancel]), and the optional completion callback of entry k always
// runs before entry k+1 starts playing. Backend failures are logged and
// treated as a normal completion so the queue never stalls.
//
// Typical usage:
//
//	q := speech.NewQueue(backend, speech.WithLanguage("fr-FR"))
//	defer q.Close()
//	done := q.Speak("Bonjour !", nil)
//	if _, err := speech.Await(ctx, done); err != nil { ... }
package speech

import (
	"context"
	"time"

	"github.com/MrWong99/readalong/pkg/coach"
)

const (
	// DefaultRate is the speaking rate used for children when none is set.
	DefaultRate = 0.85

	// DefaultPitch is the voice pitch used when none is set.
	DefaultPitch = 1.1

	// DefaultLanguage is the language used before [Queue.SetLanguage] is called.
	DefaultLanguage = "en-US"

	// DefaultUtteranceTimeout bounds a single backend Say call.
	DefaultUtteranceTimeout = 30 * time.Second

	// DefaultDynamicTimeout bounds the wait for dynamic feedback text. It
	// leaves the coach its own timeout plus a margin.
	DefaultDynamicTimeout = coach.DefaultTimeout + time.Second
)

// Utterance is one piece of text to be spoken.
type Utterance struct {
	Text     string
	Language string
	Rate     float64
	Pitch    float64
}

// Backend renders utterances audibly. Say blocks until the utterance has
// finished playing, ctx is cancelled, or an error occurs. Stop silences any
// in-flight utterance and must be safe to call when nothing is playing.
//
// The queue calls Say from a single goroutine, but Stop may be called
// concurrently with Say.
type Backend interface {
	Say(ctx context.Context, u Utterance) error
	Stop()
}

// Outcome reports how a queued utterance ended.
type Outcome int

const (
	// Completed means the utterance played to the end (or failed in the
	// backend, which counts as done) and its callback ran.
	Completed Outcome = iota + 1

	// Cancelled means the utterance was dropped or interrupted by
	// [Queue.Cancel] or [Queue.Close]; its callback did not run.
	Cancelled
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Await blocks until done yields an outcome or ctx is cancelled.
func Await(ctx context.Context, done <-chan Outcome) (Outcome, error) {
	select {
	case o := <-done:
		return o, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Silent is a [Backend] that discards every utterance. It completes
// immediately unless ctx is already done.
type Silent struct{}

// Say implements [Backend].
func (Silent) Say(ctx context.Context, _ Utterance) error { return ctx.Err() }

// Stop implements [Backend].
func (Silent) Stop() {}
