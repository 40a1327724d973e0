package progress

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/readalong/internal/letterstats"
	"github.com/MrWong99/readalong/pkg/lesson"
)

// ErrNothingToPractice is returned by [Repetition.PracticeLesson] when no
// letter has been missed yet.
var ErrNothingToPractice = errors.New("progress: nothing to practice")

const (
	defaultStruggling = 5
	defaultSuggested  = 5
	practiceWords     = 3
	practiceLetters   = 5
	practiceCap       = 10
	weightPool        = 10
)

// Repetition surfaces letters the child gets wrong so they come back more
// often.
type Repetition struct {
	stats letterstats.Store
	opts  options
}

// NewRepetition returns a Repetition over stats.
func NewRepetition(stats letterstats.Store, opts ...Option) *Repetition {
	return &Repetition{stats: stats, opts: newOptions(opts)}
}

// Record counts one attempt at letter.
func (r *Repetition) Record(ctx context.Context, letter string, correct bool) error {
	if _, err := r.stats.Record(ctx, letter, correct, r.opts.now()); err != nil {
		return fmt.Errorf("progress: record letter: %w", err)
	}
	return nil
}

// Struggling returns up to n letters with at least one mistake, highest
// weight first. n <= 0 means 5.
func (r *Repetition) Struggling(ctx context.Context, n int) ([]letterstats.Stat, error) {
	if n <= 0 {
		n = defaultStruggling
	}
	all, err := r.stats.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress: letter stats: %w", err)
	}
	all = slices.DeleteFunc(all, func(s letterstats.Stat) bool { return s.Mistakes == 0 })
	slices.SortFunc(all, func(a, b letterstats.Stat) int {
		if c := cmp.Compare(b.Weight(), a.Weight()); c != 0 {
			return c
		}
		return strings.Compare(a.Letter, b.Letter)
	})
	return all[:min(n, len(all))], nil
}

// SuggestWords ranks words by the summed weight of the struggling letters
// they contain and returns up to n of them. Words without such letters are
// dropped. n <= 0 means 5.
func (r *Repetition) SuggestWords(ctx context.Context, words []string, n int) ([]string, error) {
	if n <= 0 {
		n = defaultSuggested
	}
	struggling, err := r.Struggling(ctx, weightPool)
	if err != nil {
		return nil, err
	}
	if len(struggling) == 0 {
		return nil, nil
	}
	weights := make(map[rune]float64, len(struggling))
	for _, s := range struggling {
		if rs := []rune(s.Letter); len(rs) == 1 {
			weights[rs[0]] = s.Weight()
		}
	}

	type scored struct {
		word  string
		score float64
	}
	var ranked []scored
	for _, w := range words {
		var score float64
		for _, c := range strings.ToLower(w) {
			score += weights[c]
		}
		if score > 0 {
			ranked = append(ranked, scored{w, score})
		}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int { return cmp.Compare(b.score, a.score) })

	out := make([]string, 0, min(n, len(ranked)))
	for _, s := range ranked[:min(n, len(ranked))] {
		out = append(out, s.word)
	}
	return out, nil
}

// PracticeLesson builds a lesson from the top struggling letters followed by
// the letters of the best matching words, capped at ten prompts. words
// defaults to the built-in word bank of lang.
func (r *Repetition) PracticeLesson(ctx context.Context, lang string, words []string) (*lesson.Lesson, error) {
	if words == nil {
		words = lesson.WordBank(lang)
	}
	suggested, err := r.SuggestWords(ctx, words, practiceWords)
	if err != nil {
		return nil, err
	}
	struggling, err := r.Struggling(ctx, practiceLetters)
	if err != nil {
		return nil, err
	}

	var items []string
	for _, s := range struggling {
		items = append(items, s.Letter)
	}
	for _, w := range suggested {
		for _, c := range strings.ToLower(w) {
			items = append(items, string(c))
		}
	}
	items = slices.DeleteFunc(items, func(s string) bool { return strings.TrimSpace(s) == "" })
	if len(items) == 0 {
		return nil, ErrNothingToPractice
	}
	items = items[:min(len(items), practiceCap)]

	id := fmt.Sprintf("practice-weak-%d", r.opts.now().UnixMilli())
	return lesson.Practice(items, lang, id)
}

// Clear forgets all letter statistics.
func (r *Repetition) Clear(ctx context.Context) error {
	if err := r.stats.Clear(ctx); err != nil {
		return fmt.Errorf("progress: clear letter stats: %w", err)
	}
	return nil
}
