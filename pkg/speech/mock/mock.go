// Package mock provides a test double for the speech.Backend interface and
// the speech.Sink interface.
//
// The Backend records every utterance and can be made to fail, to take a
// fixed time, or to block until the test releases it.
//
//	b := &mock.Backend{}
//	q := speech.NewQueue(b)
//	<-q.Speak("hi", nil)
//	b.Texts() // ["hi"]
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/provider/tts"
	"github.com/MrWong99/readalong/pkg/speech"
)

// Backend is a mock implementation of speech.Backend.
type Backend struct {
	mu sync.Mutex

	// SayErr is returned by every Say call.
	SayErr error

	// Delay is waited (or ctx, whichever ends first) inside every Say call.
	Delay time.Duration

	// Gate, when non-nil, makes Say block until a value is received from it
	// or ctx is cancelled.
	Gate chan struct{}

	// OnSay, when non-nil, is called at the start of every Say call.
	OnSay func(u speech.Utterance)

	// Said records every utterance passed to Say, in call order.
	Said []speech.Utterance

	// StopCount records how many times Stop was called.
	StopCount int
}

// Say implements speech.Backend.
func (b *Backend) Say(ctx context.Context, u speech.Utterance) error {
	b.mu.Lock()
	b.Said = append(b.Said, u)
	hook, gate, delay, err := b.OnSay, b.Gate, b.Delay, b.SayErr
	b.mu.Unlock()

	if hook != nil {
		hook(u)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// SetGate replaces Gate under the mock's lock.
func (b *Backend) SetGate(g chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Gate = g
}

// Stop implements speech.Backend.
func (b *Backend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StopCount++
}

// Texts returns the text of every recorded utterance.
func (b *Backend) Texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.Said))
	for i, u := range b.Said {
		out[i] = u.Text
	}
	return out
}

// Utterances returns a copy of the recorded utterances.
func (b *Backend) Utterances() []speech.Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]speech.Utterance, len(b.Said))
	copy(out, b.Said)
	return out
}

// Stops returns StopCount.
func (b *Backend) Stops() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.StopCount
}

// Sink is a mock implementation of speech.Sink.
type Sink struct {
	mu sync.Mutex

	// PlayErr is returned by every Play call.
	PlayErr error

	// Played records every audio buffer passed to Play.
	Played []tts.Audio

	// StopCount records how many times Stop was called.
	StopCount int
}

// Play implements speech.Sink.
func (s *Sink) Play(_ context.Context, a tts.Audio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Played = append(s.Played, a)
	return s.PlayErr
}

// Stop implements speech.Sink.
func (s *Sink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StopCount++
}

// Plays returns how many times Play was called.
func (s *Sink) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Played)
}

var (
	_ speech.Backend = (*Backend)(nil)
	_ speech.Sink    = (*Sink)(nil)
)
