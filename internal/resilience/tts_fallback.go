package resilience

import (
	"context"

	"github.com/MrWong99/readalong/pkg/provider/tts"
)

// TTSFallback is a [tts.Provider] that fails over across several synthesis
// backends. The voice id in [tts.Options] is passed through unchanged, so
// fallbacks should accept the same ids or ignore unknown ones.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// Synthesize implements [tts.Provider].
func (f *TTSFallback) Synthesize(ctx context.Context, text string, opts tts.Options) (tts.Audio, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text, opts)
	})
}

// ListVoices implements [tts.Provider].
func (f *TTSFallback) ListVoices(ctx context.Context, language string) ([]tts.Voice, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx, language)
	})
}

// States reports the breaker state of each backend.
func (f *TTSFallback) States() []EntryState { return f.group.States() }

// Healthy reports whether any backend would accept a call.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }
