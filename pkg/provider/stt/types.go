package stt

// Transcript is a recognition result. Both partial and final results use it.
type Transcript struct {
	// Text is the recognised speech, trimmed and lowercased.
	Text string

	// IsFinal reports whether the backend committed to this result.
	IsFinal bool

	// Phonemes is set when the result came from phoneme mode; Text then holds
	// the space-separated phoneme tokens.
	Phonemes bool
}
