package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/readalong/pkg/provider/tts"
)

// Sink plays synthesised audio. Play starts playback and returns without
// waiting for it to end. Stop silences whatever is playing.
type Sink interface {
	Play(ctx context.Context, a tts.Audio) error
	Stop()
}

// Compile-time interface assertion.
var _ Backend = (*TTSBackend)(nil)

// TTSBackend is a [Backend] that synthesises text with a [tts.Provider] and
// hands the audio to a [Sink]. Say returns once the audio's playback time has
// elapsed.
type TTSBackend struct {
	provider tts.Provider
	sink     Sink
	voice    string
}

// NewTTSBackend returns a TTSBackend. voice may be empty to use the provider's
// default voice.
func NewTTSBackend(p tts.Provider, sink Sink, voice string) *TTSBackend {
	return &TTSBackend{provider: p, sink: sink, voice: voice}
}

// Say implements [Backend].
func (b *TTSBackend) Say(ctx context.Context, u Utterance) error {
	audio, err := b.provider.Synthesize(ctx, u.Text, tts.Options{
		VoiceID:  b.voice,
		Language: u.Language,
		Rate:     u.Rate,
	})
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	if err := b.sink.Play(ctx, audio); err != nil {
		return fmt.Errorf("speech: play: %w", err)
	}

	d := audio.Duration()
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		b.sink.Stop()
		return ctx.Err()
	}
}

// Stop implements [Backend].
func (b *TTSBackend) Stop() { b.sink.Stop() }
