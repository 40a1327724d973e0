// Package coach defines the dynamic coaching collaborator: an optional
// service that replaces canned lesson feedback with generated encouragement
// and summarises finished lessons.
//
// Coaching is always best effort. Callers wrap a [Coach] in [Guarded] so that
// every call is bounded by a timeout and failures surface as "no text"
// rather than errors.
package coach

import (
	"context"
	"time"
)

// Context describes the attempt a coach is asked to comment on.
type Context struct {
	// Language is the BCP-47 tag the reply must be written in.
	Language string

	// WordOrTitle is the word being spelled or the lesson title.
	WordOrTitle string

	// StepID identifies the prompt step the child answered.
	StepID string

	// Expected is the answer the step was waiting for.
	Expected string

	// AttemptCount is the number of attempts on this step so far, including
	// this one.
	AttemptCount int

	// WasCorrect reports whether this attempt matched.
	WasCorrect bool

	// ChildName personalises the reply when non-empty.
	ChildName string
}

// SessionSummary is the input for a lesson completion summary.
type SessionSummary struct {
	LessonTitle     string
	Language        string
	TotalAttempts   int
	CorrectAttempts int
	Duration        time.Duration
	ChildName       string
}

// Coach generates child-facing text.
//
// Implementations must be safe for concurrent use.
type Coach interface {
	// Encourage returns a short reaction to one attempt.
	Encourage(ctx context.Context, c Context) (string, error)

	// Summarize returns a short completion message for a finished lesson.
	Summarize(ctx context.Context, s SessionSummary) (string, error)

	// ExplainSyllables returns a child-friendly explanation of how word
	// splits into syllables.
	ExplainSyllables(ctx context.Context, word string, syllables []string, language string) (string, error)
}
