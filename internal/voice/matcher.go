// Package voice turns speech recognition results into letter input for the
// lesson engine.
//
// Recognisers rarely return a bare letter. A child asked for "b" says "bee",
// and the recogniser may hear "bea". [Matcher] resolves such results against
// the expected letter in three stages:
//
//  1. Exact: the text is the letter or one of its spoken names.
//  2. Phonetic: a Double Metaphone code of the text overlaps with a code of
//     one of the names and their Jaro-Winkler similarity reaches the phonetic
//     threshold (default 0.70).
//  3. Fuzzy: pure Jaro-Winkler similarity reaches the fuzzy threshold
//     (default 0.85).
//
// Text that does not resolve to the expected letter is still forwarded, as
// the letter it names when possible, so wrong answers count as attempts.
//
// [Listener] connects an stt.Provider stream to a lesson target.
package voice

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/readalong/pkg/provider/stt"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching name. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// code overlaps. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher resolves recognised text to letters. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher returns a [Matcher] with the given options applied.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match is the result of [Matcher.Resolve].
type Match struct {
	// Letter is the input to forward. Empty when nothing usable was heard.
	Letter string

	// Confidence is 1 for exact matches and the Jaro-Winkler score for
	// phonetic and fuzzy ones.
	Confidence float64

	// Expected reports whether Letter is the expected answer.
	Expected bool
}

// Resolve maps heard to a letter, preferring the expected one.
func (m *Matcher) Resolve(heard, expected, lang string) Match {
	text := normalize(heard)
	if text == "" {
		return Match{}
	}
	expected = strings.ToLower(expected)
	if expected != "" {
		if text == expected {
			return Match{Letter: expected, Confidence: 1, Expected: true}
		}
		names := Names(expected, lang)
		for _, n := range names {
			if text == n {
				return Match{Letter: expected, Confidence: 1, Expected: true}
			}
		}
		if score, ok := m.similar(text, names); ok {
			return Match{Letter: expected, Confidence: score, Expected: true}
		}
	}

	if l, ok := LetterForName(text, lang); ok {
		return Match{Letter: l, Confidence: 1}
	}
	return Match{Letter: text}
}

// similar reports whether text sounds like one of names.
func (m *Matcher) similar(text string, names []string) (float64, bool) {
	if len(names) == 0 {
		return 0, false
	}
	textCodes := codes(text)

	var (
		best     float64
		phonetic bool
	)
	for _, n := range names {
		score := matchr.JaroWinkler(text, n, false)
		if overlaps(textCodes, codes(n)) {
			if score >= m.phoneticThreshold && (!phonetic || score > best) {
				best, phonetic = score, true
			}
		} else if !phonetic && score >= m.fuzzyThreshold && score > best {
			best = score
		}
	}
	return best, best > 0
}

// normalize lowercases text and drops unknown-word markers.
func normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	kept := fields[:0]
	for _, f := range fields {
		if f != stt.UnknownToken {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// codes returns the non-empty Double Metaphone codes of every word in s.
func codes(s string) map[string]struct{} {
	words := strings.Fields(s)
	out := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		p, alt := matchr.DoubleMetaphone(w)
		if p != "" {
			out[p] = struct{}{}
		}
		if alt != "" {
			out[alt] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
