package resilience

import (
	"context"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that fails over across several recognition
// backends. Only opening a stream is covered; errors on an established stream
// are handled by its consumer.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// StartStream implements [stt.Provider].
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// States reports the breaker state of each backend.
func (f *STTFallback) States() []EntryState { return f.group.States() }

// Healthy reports whether any backend would accept a call.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }
