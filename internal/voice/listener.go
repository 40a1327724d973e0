package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/pkg/provider/stt"
)

var (
	// ErrNotListening is returned by [Listener.Feed] when no stream is open.
	ErrNotListening = errors.New("voice: not listening")

	// ErrAlreadyRunning is returned by [Listener.Run] when a stream is
	// already open.
	ErrAlreadyRunning = errors.New("voice: listener already running")
)

// Target receives resolved letters.
type Target interface {
	HandleInput(raw string) session.Outcome
}

// Config holds the dependencies of a [Listener].
type Config struct {
	Provider stt.Provider
	Target   Target

	// Matcher defaults to NewMatcher().
	Matcher *Matcher

	// Language is the initial recognition language. Default: "en".
	Language string

	// SampleRate of the audio passed to Feed. Default: 16000.
	SampleRate int

	// PhonemeMode asks the recogniser for phonemes instead of words.
	PhonemeMode bool
}

// Listener streams audio to a recogniser and forwards what it hears to a
// [Target]. It also implements session.Observer so the grammar follows the
// expected answer.
type Listener struct {
	provider    stt.Provider
	target      Target
	matcher     *Matcher
	sampleRate  int
	phonemeMode bool

	mu       sync.Mutex
	handle   stt.SessionHandle
	running  bool
	language string
	expected string
}

var _ session.Observer = (*Listener)(nil)

// NewListener validates cfg and returns a [Listener].
func NewListener(cfg Config) (*Listener, error) {
	if cfg.Provider == nil {
		return nil, errors.New("voice: provider is required")
	}
	if cfg.Target == nil {
		return nil, errors.New("voice: target is required")
	}
	if cfg.Matcher == nil {
		cfg.Matcher = NewMatcher()
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Listener{
		provider:    cfg.Provider,
		target:      cfg.Target,
		matcher:     cfg.Matcher,
		sampleRate:  cfg.SampleRate,
		phonemeMode: cfg.PhonemeMode,
		language:    cfg.Language,
	}, nil
}

// Run opens a recognition stream and forwards final results until ctx is
// done or the stream ends. It returns nil in both cases.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	cfg := stt.StreamConfig{
		SampleRate:  l.sampleRate,
		Language:    l.language,
		Grammar:     Grammar(l.expected, l.language),
		PhonemeMode: l.phonemeMode,
	}
	l.mu.Unlock()

	handle, err := l.provider.StartStream(ctx, cfg)
	if err != nil {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
		return fmt.Errorf("voice: start stream: %w", err)
	}

	l.mu.Lock()
	l.handle = handle
	l.mu.Unlock()
	slog.Info("voice: listening", "language", cfg.Language, "phoneme_mode", cfg.PhonemeMode)

	defer func() {
		l.mu.Lock()
		l.handle = nil
		l.running = false
		l.mu.Unlock()
		if err := handle.Close(); err != nil {
			slog.Debug("voice: close stream", "err", err)
		}
	}()

	finals := handle.Finals()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-finals:
			if !ok {
				return nil
			}
			l.handleTranscript(t)
		}
	}
}

func (l *Listener) handleTranscript(t stt.Transcript) {
	l.mu.Lock()
	expected, lang := l.expected, l.language
	l.mu.Unlock()

	if t.Phonemes {
		if expected == "" {
			return
		}
		for _, tok := range strings.Fields(t.Text) {
			if MatchPhoneme(tok, expected, lang) {
				out := l.target.HandleInput(expected)
				slog.Debug("voice: phoneme matched", "phoneme", tok, "letter", expected, "outcome", out.String())
				return
			}
		}
		return
	}

	m := l.matcher.Resolve(t.Text, expected, lang)
	if m.Letter == "" {
		return
	}
	out := l.target.HandleInput(m.Letter)
	slog.Debug("voice: heard", "text", t.Text, "letter", m.Letter, "confidence", m.Confidence, "outcome", out.String())
}

// Feed sends a chunk of PCM audio to the open stream.
func (l *Listener) Feed(chunk []byte) error {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()
	if h == nil {
		return ErrNotListening
	}
	return h.SendAudio(chunk)
}

// Listening reports whether a stream is open.
func (l *Listener) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

// SetLanguage changes the language used for matching and for the next
// stream.
func (l *Listener) SetLanguage(lang string) {
	if lang == "" {
		return
	}
	l.mu.Lock()
	l.language = lang
	l.mu.Unlock()
}

// Progress implements session.Observer.
func (l *Listener) Progress(int, int) {}

// Expect implements session.Observer. It narrows the grammar of the open
// stream to the expected answer.
func (l *Listener) Expect(answer string, ok bool) {
	l.mu.Lock()
	if ok {
		l.expected = strings.ToLower(answer)
	} else {
		l.expected = ""
	}
	h, lang, expected := l.handle, l.language, l.expected
	l.mu.Unlock()

	if h == nil || expected == "" {
		return
	}
	if err := h.SetGrammar(Grammar(expected, lang)); err != nil && !errors.Is(err, stt.ErrNotSupported) {
		slog.Debug("voice: set grammar", "err", err)
	}
}
