package voice_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/internal/voice"
	"github.com/MrWong99/readalong/pkg/provider/stt"
	sttmock "github.com/MrWong99/readalong/pkg/provider/stt/mock"
)

func TestMatcher_Resolve(t *testing.T) {
	t.Parallel()

	m := voice.NewMatcher()
	tests := []struct {
		name     string
		heard    string
		expected string
		lang     string
		want     string
		correct  bool
	}{
		{"bare letter", "B", "b", "en", "b", true},
		{"letter name", "bee", "b", "en", "b", true},
		{"french name", "bé", "b", "fr-FR", "b", true},
		{"phonetic", "bea", "b", "en", "b", true},
		{"unknown markers dropped", "[unk] see", "c", "en", "c", true},
		{"other letter name", "pea", "b", "en", "p", false},
		{"other letter", "d", "b", "en", "d", false},
		{"free word", "banana", "c", "en", "banana", false},
		{"nothing heard", "[unk]", "c", "en", "", false},
		{"no expectation", "tee", "", "en", "t", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := m.Resolve(tt.heard, tt.expected, tt.lang)
			if got.Letter != tt.want || got.Expected != tt.correct {
				t.Errorf("Resolve(%q, %q) = %+v, want letter %q expected=%v", tt.heard, tt.expected, got, tt.want, tt.correct)
			}
			if got.Expected && got.Confidence < 0.7 {
				t.Errorf("confidence = %f, want >= 0.7", got.Confidence)
			}
		})
	}
}

func TestMatcher_StrictThresholds(t *testing.T) {
	t.Parallel()

	m := voice.NewMatcher(voice.WithPhoneticThreshold(1.1), voice.WithFuzzyThreshold(1.1))
	if got := m.Resolve("bea", "b", "en"); got.Expected {
		t.Errorf("Resolve with unreachable thresholds = %+v", got)
	}
	if got := m.Resolve("bee", "b", "en"); !got.Expected {
		t.Errorf("exact names should ignore thresholds, got %+v", got)
	}
}

func TestMatchPhoneme(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spoken, expected, lang string
		want                   bool
	}{
		{"k", "c", "fr", true},
		{"s", "c", "en", true},
		{"ʁ", "r", "fr", true},
		{"r", "r", "fr", true},
		{"eh", "e", "fr", true},
		{"ey", "a", "en-US", true},
		{"iy", "e", "en", true},
		{"uw", "u", "fr", true},
		{"zh", "j", "fr", true},
		{"m", "n", "fr", false},
		{"ah", "h", "fr", false},
		{"tu", "t", "de", true},
		{"tree", "t", "en", false},
		{"", "a", "en", false},
	}
	for _, tt := range tests {
		if got := voice.MatchPhoneme(tt.spoken, tt.expected, tt.lang); got != tt.want {
			t.Errorf("MatchPhoneme(%q, %q, %q) = %v, want %v", tt.spoken, tt.expected, tt.lang, got, tt.want)
		}
	}
}

func TestGrammarAndNames(t *testing.T) {
	t.Parallel()

	if got := voice.Grammar("B", "en"); !slices.Equal(got, []string{"b", "bee", "be"}) {
		t.Errorf("Grammar(B) = %v", got)
	}
	if got := voice.Grammar(" ", "en"); got != nil {
		t.Errorf("Grammar(space) = %v, want nil", got)
	}
	if l, ok := voice.LetterForName("Zed", "en-GB"); !ok || l != "z" {
		t.Errorf("LetterForName(Zed) = %q, %v", l, ok)
	}
	if l, ok := voice.LetterForName("hache", "fr"); !ok || l != "h" {
		t.Errorf("LetterForName(hache) = %q, %v", l, ok)
	}
	if _, ok := voice.LetterForName("hache", "en"); ok {
		t.Error("french name resolved in english")
	}
}

// target records forwarded input.
type target struct {
	mu     sync.Mutex
	inputs []string
}

func (t *target) HandleInput(raw string) session.Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputs = append(t.inputs, raw)
	return session.Correct
}

func (t *target) Inputs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.inputs)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListener_ForwardsResolvedLetters(t *testing.T) {
	t.Parallel()

	sess := sttmock.NewSession()
	p := &sttmock.Provider{Session: sess}
	tgt := &target{}
	l, err := voice.NewListener(voice.Config{Provider: p, Target: tgt, Language: "en-US"})
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	l.Expect("c", true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	waitFor(t, l.Listening)

	cfgs := p.Calls()
	if len(cfgs) != 1 || cfgs[0].SampleRate != 16000 || !slices.Equal(cfgs[0].Grammar, []string{"c", "see", "sea", "cee"}) {
		t.Fatalf("stream configs = %+v", cfgs)
	}

	if err := l.Feed([]byte{1, 2}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	sess.FinalsCh <- stt.Transcript{Text: "sea", IsFinal: true}
	sess.FinalsCh <- stt.Transcript{Text: "[unk]", IsFinal: true}
	waitFor(t, func() bool { return len(tgt.Inputs()) == 1 })

	l.Expect("a", true)
	if got := sess.LastGrammar(); !slices.Equal(got, []string{"a", "ay"}) {
		t.Errorf("grammar after Expect = %v", got)
	}
	sess.FinalsCh <- stt.Transcript{Text: "tea", IsFinal: true}
	waitFor(t, func() bool { return len(tgt.Inputs()) == 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := tgt.Inputs(); !slices.Equal(got, []string{"c", "t"}) {
		t.Errorf("inputs = %v, want [c t]", got)
	}
	if sess.CloseCount != 1 {
		t.Errorf("close count = %d", sess.CloseCount)
	}
	if err := l.Feed([]byte{1}); !errors.Is(err, voice.ErrNotListening) {
		t.Errorf("Feed after stop = %v, want ErrNotListening", err)
	}
}

func TestListener_PhonemeMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
		phonemes []string
		want     []string
	}{
		{name: "match forwards expected letter", expected: "c", phonemes: []string{"m n", "ah k"}, want: []string{"c"}},
		{name: "no expectation drops phonemes", phonemes: []string{"k"}},
		{name: "silent letter never matches", expected: "h", phonemes: []string{"hh", "ah"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sess := sttmock.NewSession()
			p := &sttmock.Provider{Session: sess}
			tgt := &target{}
			l, _ := voice.NewListener(voice.Config{Provider: p, Target: tgt, Language: "fr", PhonemeMode: true})
			if tt.expected != "" {
				l.Expect(tt.expected, true)
			}
			for _, ph := range tt.phonemes {
				sess.FinalsCh <- stt.Transcript{Text: ph, Phonemes: true}
			}
			_ = sess.Close()

			if err := l.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := tgt.Inputs(); !slices.Equal(got, tt.want) {
				t.Errorf("inputs = %v, want %v", got, tt.want)
			}
			if !p.Calls()[0].PhonemeMode {
				t.Error("stream should be opened in phoneme mode")
			}
		})
	}
}

func TestListener_Errors(t *testing.T) {
	t.Parallel()

	if _, err := voice.NewListener(voice.Config{Target: &target{}}); err == nil {
		t.Error("expected error without provider")
	}
	if _, err := voice.NewListener(voice.Config{Provider: &sttmock.Provider{}}); err == nil {
		t.Error("expected error without target")
	}

	down := errors.New("vosk down")
	l, _ := voice.NewListener(voice.Config{Provider: &sttmock.Provider{StartStreamErr: down}, Target: &target{}})
	if err := l.Run(context.Background()); !errors.Is(err, down) {
		t.Fatalf("Run = %v, want wrapped start error", err)
	}
	if l.Listening() {
		t.Error("listener should not be listening after a failed start")
	}
}
