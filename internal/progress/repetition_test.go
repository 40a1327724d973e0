package progress_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/letterstats/memory"
	"github.com/MrWong99/readalong/internal/progress"
)

func newRepetition(t *testing.T, attempts map[string][2]int) *progress.Repetition {
	t.Helper()
	r := progress.NewRepetition(memory.New(), progress.WithClock(func() time.Time { return noon }))
	ctx := context.Background()
	for letter, counts := range attempts {
		for i := range counts[0] {
			if err := r.Record(ctx, letter, i >= counts[1]); err != nil {
				t.Fatal(err)
			}
		}
	}
	return r
}

func letters(t *testing.T, r *progress.Repetition, n int) []string {
	t.Helper()
	stats, err := r.Struggling(context.Background(), n)
	if err != nil {
		t.Fatalf("Struggling: %v", err)
	}
	var out []string
	for _, s := range stats {
		out = append(out, s.Letter)
	}
	return out
}

func TestRepetition_Struggling(t *testing.T) {
	t.Parallel()

	// {total, mistakes}
	r := newRepetition(t, map[string][2]int{
		"b": {4, 3}, // 0.75 + 0.3
		"d": {2, 1}, // 0.5 + 0.1
		"a": {5, 0},
		"p": {1, 1}, // 1 + 0.1
		"q": {2, 1}, // ties with d
	})
	if got := letters(t, r, 0); !slices.Equal(got, []string{"p", "b", "d", "q"}) {
		t.Errorf("struggling = %v", got)
	}
	if got := letters(t, r, 2); !slices.Equal(got, []string{"p", "b"}) {
		t.Errorf("struggling(2) = %v", got)
	}
}

func TestRepetition_SuggestWords(t *testing.T) {
	t.Parallel()

	r := newRepetition(t, map[string][2]int{"b": {2, 2}, "t": {2, 1}})
	words := []string{"cat", "bat", "sun", "baby", "tub"}
	got, err := r.SuggestWords(context.Background(), words, 3)
	if err != nil {
		t.Fatal(err)
	}
	// b = 1.2, t = 0.6: baby 2.4, bat 1.8, tub 1.8, cat 0.6
	if !slices.Equal(got, []string{"baby", "bat", "tub"}) {
		t.Errorf("SuggestWords = %v", got)
	}

	none := newRepetition(t, nil)
	if got, _ := none.SuggestWords(context.Background(), words, 3); len(got) != 0 {
		t.Errorf("suggestions without mistakes = %v", got)
	}
}

func TestRepetition_PracticeLesson(t *testing.T) {
	t.Parallel()

	r := newRepetition(t, map[string][2]int{"b": {2, 2}})
	l, err := r.PracticeLesson(context.Background(), "en", []string{"cab", "sun", "bib"})
	if err != nil {
		t.Fatalf("PracticeLesson: %v", err)
	}
	// b, then bib (2.4), then cab (1.2).
	var expected []string
	for _, s := range l.Steps() {
		if s.Expected != "" {
			expected = append(expected, s.Expected)
		}
	}
	if !slices.Equal(expected, []string{"b", "b", "i", "b", "c", "a", "b"}) {
		t.Errorf("expected answers = %v", expected)
	}
	if l.ID != "practice-weak-1775822400000" {
		t.Errorf("id = %q", l.ID)
	}
}

func TestRepetition_PracticeLessonCapped(t *testing.T) {
	t.Parallel()

	r := newRepetition(t, map[string][2]int{"a": {1, 1}, "e": {1, 1}, "o": {1, 1}})
	l, err := r.PracticeLesson(context.Background(), "fr", nil)
	if err != nil {
		t.Fatalf("PracticeLesson: %v", err)
	}
	if l.Prompts() != 10 {
		t.Errorf("prompts = %d, want 10", l.Prompts())
	}
}

func TestRepetition_NothingToPractice(t *testing.T) {
	t.Parallel()

	r := newRepetition(t, map[string][2]int{"a": {3, 0}})
	if _, err := r.PracticeLesson(context.Background(), "en", nil); !errors.Is(err, progress.ErrNothingToPractice) {
		t.Fatalf("err = %v, want ErrNothingToPractice", err)
	}
	if err := r.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := letters(t, r, 5); len(got) != 0 {
		t.Errorf("after clear = %v", got)
	}
}
