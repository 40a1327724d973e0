package tts

import "time"

// Voice describes a voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is the BCP-47 tag the voice speaks, when known.
	Language string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string
}

// Options selects voice and prosody for one synthesis request.
type Options struct {
	// VoiceID selects the voice. Empty uses the provider's default.
	VoiceID string

	// Language is the BCP-47 tag of the text (e.g. "fr-FR").
	Language string

	// Rate scales the speaking rate (1.0 = normal). Zero means normal.
	Rate float64
}

// Audio is synthesised mono or stereo 16-bit PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the playback length of a.
func (a Audio) Duration() time.Duration {
	ch := a.Channels
	if ch <= 0 {
		ch = 1
	}
	if a.SampleRate <= 0 {
		return 0
	}
	samples := len(a.PCM) / (2 * ch)
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}
