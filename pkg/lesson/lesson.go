// Package lesson defines scripted lessons: immutable, ordered sequences of
// narrate, prompt and complete steps that drive a child through spelling a
// word letter by letter.
//
// A [Lesson] is built either from a [Definition] (hand-authored, typically
// YAML) via [New], or procedurally from a single word via [FromWord]. Both
// paths validate the step graph and resolve every "next" link to an index, so
// the session that plays a lesson never deals with string ids or sentinel
// values.
package lesson

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by lesson construction.
var (
	// ErrInvalidInput is returned when a lesson cannot be generated from the
	// given input, for example an empty word.
	ErrInvalidInput = errors.New("lesson: invalid input")

	// ErrMalformedLesson is returned when a definition violates the step graph
	// invariants (unique ids, exactly one complete step, resolvable links, no
	// cycles).
	ErrMalformedLesson = errors.New("lesson: malformed lesson")
)

// CompleteMarker may be used as a step's next link to refer to the lesson's
// complete step regardless of that step's actual id.
const CompleteMarker = "complete"

// Kind identifies the variant of a [Step].
type Kind int

const (
	// KindNarrate speaks its text and moves on by itself.
	KindNarrate Kind = iota + 1

	// KindPrompt speaks its text and waits for the expected answer.
	KindPrompt

	// KindComplete is the terminal step of every lesson.
	KindComplete
)

// String returns the lowercase name used in lesson files.
func (k Kind) String() string {
	switch k {
	case KindNarrate:
		return "narrate"
	case KindPrompt:
		return "prompt"
	case KindComplete:
		return "complete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case KindNarrate, KindPrompt, KindComplete:
		return []byte(k.String()), nil
	default:
		return nil, fmt.Errorf("lesson: unknown step kind %d", int(k))
	}
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "narrate":
		*k = KindNarrate
	case "prompt":
		*k = KindPrompt
	case "complete":
		*k = KindComplete
	default:
		return fmt.Errorf("lesson: unknown step kind %q", string(text))
	}
	return nil
}

// Step is one resolved instruction unit of a [Lesson].
type Step struct {
	// ID is unique within the lesson.
	ID string

	// Kind selects which of the remaining fields are meaningful.
	Kind Kind

	// Text is spoken when the step is entered.
	Text string

	// Expected is the answer a prompt waits for, stored lowercase.
	// Empty for narrate and complete steps.
	Expected string

	// SuccessText and FailureText are spoken after a correct or wrong answer
	// to a prompt.
	SuccessText string
	FailureText string

	// Next is the index of the following step. It is -1 for the complete step.
	Next int
}

// Terminal reports whether s is the lesson's complete step.
func (s Step) Terminal() bool { return s.Kind == KindComplete }

// Lesson is an immutable, validated lesson script. The zero value is not
// usable; construct lessons with [New], [FromWord], [Build] or [Practice].
//
// A Lesson may be shared by any number of sessions over time.
type Lesson struct {
	ID       string
	Language string
	Title    string

	steps    []Step
	complete int
}

// Len returns the number of steps.
func (l *Lesson) Len() int { return len(l.steps) }

// Entry returns the index of the first step, which is always 0.
func (l *Lesson) Entry() int { return 0 }

// CompleteIndex returns the index of the complete step.
func (l *Lesson) CompleteIndex() int { return l.complete }

// Step returns the step at index i. It panics if i is out of range.
func (l *Lesson) Step(i int) Step { return l.steps[i] }

// Steps returns a copy of all steps in authoring order.
func (l *Lesson) Steps() []Step {
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// IndexOf returns the index of the step with the given id, or -1.
func (l *Lesson) IndexOf(id string) int {
	for i, s := range l.steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Prompts returns the number of prompt steps.
func (l *Lesson) Prompts() int {
	n := 0
	for _, s := range l.steps {
		if s.Kind == KindPrompt {
			n++
		}
	}
	return n
}

// Definition converts l back to its authoring form. Next links are written
// as step ids.
func (l *Lesson) Definition() Definition {
	def := Definition{
		ID:       l.ID,
		Language: l.Language,
		Title:    l.Title,
		Steps:    make([]StepDefinition, len(l.steps)),
	}
	for i, s := range l.steps {
		sd := StepDefinition{
			ID:          s.ID,
			Kind:        s.Kind,
			Text:        s.Text,
			Expected:    s.Expected,
			SuccessText: s.SuccessText,
			FailureText: s.FailureText,
		}
		if s.Next >= 0 {
			sd.Next = l.steps[s.Next].ID
		}
		def.Steps[i] = sd
	}
	return def
}
