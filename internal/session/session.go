// Package session drives one lesson run: it walks the lesson's steps, speaks
// each step through the speech queue, matches the child's input against the
// expected answer and logs every attempt.
//
// A [Session] never blocks its callers. Transitions that must wait for speech
// are scheduled as speech completion callbacks; each such callback carries the
// generation it was scheduled in and is ignored once the session has moved on
// or was cancelled.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/coach"
	"github.com/MrWong99/readalong/pkg/lesson"
	"github.com/MrWong99/readalong/pkg/speech"
)

// Speaker is the part of the speech queue a session uses. *speech.Queue
// implements it.
type Speaker interface {
	Speak(text string, onComplete func()) <-chan speech.Outcome
	SpeakDynamic(ctx context.Context, canned string, c coach.Context, onComplete func()) <-chan speech.Outcome
}

var _ Speaker = (*speech.Queue)(nil)

// Observer receives purely informational notifications. Its methods are called
// without the session lock held, one at a time and in step order, and must
// not block.
type Observer interface {
	// Progress is called on every step entry with the step index and the
	// number of steps in the lesson.
	Progress(index, total int)

	// Expect is called on every step entry with the answer the session now
	// waits for; ok is false for narrate and complete steps.
	Expect(answer string, ok bool)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) Progress(int, int)   {}
func (NopObserver) Expect(string, bool) {}

// Phase is the session's state.
type Phase int

const (
	// PhaseNarrating means the session is speaking and ignores input.
	PhaseNarrating Phase = iota + 1

	// PhaseAwaitingInput means the current prompt accepts answers.
	PhaseAwaitingInput

	// PhaseCompleted means the complete step was reached.
	PhaseCompleted
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseNarrating:
		return "narrating"
	case PhaseAwaitingInput:
		return "awaiting_input"
	case PhaseCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one [Session.HandleInput] call.
type Outcome int

const (
	// Ignored means the session was not waiting for input.
	Ignored Outcome = iota
	// Correct means the input matched and the session moves on.
	Correct
	// Incorrect means the input did not match; the prompt stays active.
	Incorrect
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "ignored"
	}
}

// Config holds a session's collaborators.
type Config struct {
	// Speech speaks all narration and feedback. Required.
	Speech Speaker

	// Observer receives progress notifications. Defaults to [NopObserver].
	Observer Observer

	// OnComplete is called once, on its own goroutine, after the complete
	// step has been spoken. It is never called for a cancelled session.
	OnComplete func(Report)

	// Clock supplies timestamps. Defaults to time.Now.
	Clock func() time.Time

	// ChildName personalises dynamic feedback.
	ChildName string

	// Context bounds dynamic feedback requests. Defaults to
	// context.Background.
	Context context.Context
}

// Session runs one lesson. All methods are safe for concurrent use.
type Session struct {
	lesson     *lesson.Lesson
	speech     Speaker
	observer   Observer
	onComplete func(Report)
	childName  string
	ctx        context.Context
	logger     *Logger

	mu        sync.Mutex
	started   bool
	cancelled bool
	finished  bool
	gen       uint64
	cur       int
	phase     Phase
	attempts  int
	done      chan struct{}
	notes     []note // step entries not yet reported to the observer

	notifyMu sync.Mutex // held while delivering notes
}

// note is one step entry as the observer sees it.
type note struct {
	index, total int
	expected     string
	ok           bool
}

// New creates a session for l. It does not speak until [Session.Start].
func New(l *lesson.Lesson, cfg Config) (*Session, error) {
	if l == nil {
		return nil, errors.New("session: lesson is nil")
	}
	if cfg.Speech == nil {
		return nil, errors.New("session: speech is nil")
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	return &Session{
		lesson:     l,
		speech:     cfg.Speech,
		observer:   cfg.Observer,
		onComplete: cfg.OnComplete,
		childName:  cfg.ChildName,
		ctx:        cfg.Context,
		logger:     NewLogger(cfg.Clock),
		cur:        l.Entry(),
		phase:      PhaseNarrating,
		done:       make(chan struct{}),
	}, nil
}

// Start enters the lesson's entry step. Calls after the first are no-ops.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.enterLocked(s.lesson.Entry())
	s.mu.Unlock()
	s.flush()
}

// enterLocked moves the cursor to step i, schedules its speech and queues the
// observer note. Callers run [Session.flush] after releasing s.mu.
func (s *Session) enterLocked(i int) {
	s.gen++
	gen := s.gen
	s.cur = i
	step := s.lesson.Step(i)

	switch step.Kind {
	case lesson.KindPrompt:
		s.phase = PhaseAwaitingInput
		s.attempts = 0
		s.speech.Speak(step.Text, nil)
	case lesson.KindComplete:
		s.phase = PhaseCompleted
		s.speech.Speak(step.Text, func() { s.finish(gen) })
	default:
		s.phase = PhaseNarrating
		next := step.Next
		s.speech.Speak(step.Text, func() { s.advance(gen, next) })
	}

	s.notes = append(s.notes, note{
		index:    i,
		total:    s.lesson.Len(),
		expected: step.Expected,
		ok:       step.Kind == lesson.KindPrompt,
	})
}

// flush delivers queued notes in the order their steps were entered. The
// speech goroutine can enter the next step before the goroutine that entered
// the previous one gets here; whichever flushes first delivers both.
func (s *Session) flush() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	for {
		s.mu.Lock()
		if s.cancelled || len(s.notes) == 0 {
			s.mu.Unlock()
			return
		}
		n := s.notes[0]
		s.notes = s.notes[1:]
		s.mu.Unlock()

		s.observer.Progress(n.index, n.total)
		s.observer.Expect(n.expected, n.ok)
	}
}

// advance enters step next if the session is still in generation gen.
func (s *Session) advance(gen uint64, next int) {
	s.mu.Lock()
	if s.cancelled || gen != s.gen || next < 0 {
		s.mu.Unlock()
		return
	}
	s.enterLocked(next)
	s.mu.Unlock()
	s.flush()
}

// finish reports completion if the session is still in generation gen.
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if s.cancelled || gen != s.gen || s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.logger.Finish()
	report := s.logger.Report()
	cb := s.onComplete
	close(s.done)
	s.mu.Unlock()

	if cb != nil {
		go cb(report)
	}
}

// HandleInput matches raw against the current prompt's expected answer.
// Matching is case-insensitive and exact. Surrounding whitespace is ignored
// unless the input is nothing but whitespace, so that a space can answer a
// space prompt. Every call while a prompt is active counts as an attempt and
// is logged; empty input is an incorrect attempt.
func (s *Session) HandleInput(raw string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled || !s.started || s.phase != PhaseAwaitingInput {
		return Ignored
	}

	step := s.lesson.Step(s.cur)
	input := normalize(raw)
	correct := input != "" && input == step.Expected
	s.attempts++
	s.logger.Log(step.ID, input, correct, s.attempts)

	cc := coach.Context{
		Language:     s.lesson.Language,
		WordOrTitle:  s.lesson.Title,
		StepID:       step.ID,
		Expected:     step.Expected,
		AttemptCount: s.attempts,
		WasCorrect:   correct,
		ChildName:    s.childName,
	}

	if !correct {
		s.speech.SpeakDynamic(s.ctx, step.FailureText, cc, nil)
		return Incorrect
	}

	// Success feedback plays before the next step; input is ignored meanwhile.
	s.gen++
	gen := s.gen
	s.phase = PhaseNarrating
	next := step.Next
	s.speech.SpeakDynamic(s.ctx, step.SuccessText, cc, func() { s.advance(gen, next) })
	return Correct
}

func normalize(raw string) string {
	lower := strings.ToLower(raw)
	if t := strings.TrimSpace(lower); t != "" {
		return t
	}
	return lower
}

// Cancel makes the session inert: pending speech callbacks are ignored, input
// is ignored and OnComplete never fires. The caller owns the speech queue and
// is responsible for cancelling it.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.gen++
	s.notes = nil
}

// Lesson returns the lesson being run.
func (s *Session) Lesson() *lesson.Lesson { return s.lesson }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentIndex returns the index of the current step.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// CurrentStep returns the current step.
func (s *Session) CurrentStep() lesson.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lesson.Step(s.cur)
}

// Attempts returns the number of attempts on the current prompt.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Cancelled reports whether [Session.Cancel] was called.
func (s *Session) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Done is closed when the session completes. It is never closed for a
// cancelled session.
func (s *Session) Done() <-chan struct{} { return s.done }

// Report returns the attempt report so far.
func (s *Session) Report() Report { return s.logger.Report() }
