package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/readalong/internal/events"
	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/progress"
	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/pkg/coach"
	"github.com/MrWong99/readalong/pkg/lesson"
)

var (
	// ErrInactive is returned when instruction mode is off.
	ErrInactive = errors.New("app: instruction mode is not active")

	// ErrNoSession is returned when no lesson is running.
	ErrNoSession = errors.New("app: no lesson is running")

	// ErrPracticeUnavailable is returned by StartPracticeLesson when no
	// letter statistics are configured.
	ErrPracticeUnavailable = errors.New("app: practice lessons are not configured")
)

// completionTimeout bounds the work done after a lesson completes.
const completionTimeout = 10 * time.Second

// Speech is the speech queue as seen by the controller. *speech.Queue
// implements it.
type Speech interface {
	session.Speaker
	Cancel()
	SetLanguage(tag string)
}

// Lessons resolves lesson ids. *library.Library implements it.
type Lessons interface {
	Get(ctx context.Context, id string) (*lesson.Lesson, error)
}

// Completion describes a finished lesson.
type Completion struct {
	LessonID    string         `json:"lesson_id"`
	LessonTitle string         `json:"lesson_title"`
	Language    string         `json:"language"`
	Report      session.Report `json:"report"`
	Accuracy    int            `json:"accuracy"`
	Stars       int            `json:"stars"`
	Summary     string         `json:"summary"`
}

// Observer receives session notifications and lesson completions. All
// methods must return quickly.
type Observer interface {
	session.Observer
	Completed(Completion)
}

// NopObserver ignores all notifications.
type NopObserver struct{ session.NopObserver }

// Completed implements [Observer].
func (NopObserver) Completed(Completion) {}

// languageSetter is implemented by observers that follow the tutor's
// language, such as the voice listener.
type languageSetter interface {
	SetLanguage(lang string)
}

// Status is a snapshot of the controller.
type Status struct {
	Active      bool   `json:"active"`
	Language    string `json:"language"`
	LessonID    string `json:"lesson_id,omitempty"`
	LessonTitle string `json:"lesson_title,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	StepIndex   int    `json:"step_index"`
	TotalSteps  int    `json:"total_steps"`
	Phase       string `json:"phase,omitempty"`
	Attempts    int    `json:"attempts"`
	Expected    string `json:"expected,omitempty"`
}

// ControllerConfig holds the controller's collaborators. Speech and Lessons
// are required; everything else is optional.
type ControllerConfig struct {
	Speech  Speech
	Lessons Lessons

	// Coach generates completion summaries.
	Coach *coach.Guarded

	// Progress stores finished lessons.
	Progress *progress.Tracker

	// Practice records per-letter results and builds practice lessons.
	Practice *progress.Repetition

	// Events receives lesson lifecycle events. Default: events.Nop.
	Events events.Publisher

	// Observer receives progress and completion notifications.
	Observer Observer

	Metrics *observe.Metrics

	// Language is the initial base language tag. Default: "en".
	Language string

	// ChildName personalises coaching.
	ChildName string

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Controller is the instruction mode: it owns at most one running lesson
// session, routes input into it and handles what happens after a lesson
// completes. All methods are safe for concurrent use.
type Controller struct {
	speech    Speech
	lessons   Lessons
	coach     *coach.Guarded
	progress  *progress.Tracker
	practice  *progress.Repetition
	events    events.Publisher
	observer  Observer
	metrics   *observe.Metrics
	clock     func() time.Time

	mu        sync.Mutex
	active    bool
	language  string
	childName string
	sess      *session.Session
	cancel    context.CancelFunc // bounds the running session's coaching calls
	span      trace.Span
}

// NewController returns an inactive controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Speech == nil {
		return nil, errors.New("app: controller speech is nil")
	}
	if cfg.Lessons == nil {
		return nil, errors.New("app: controller lessons is nil")
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	lang := BaseLanguage(cfg.Language)
	if lang == "" {
		lang = "en"
	}
	cfg.Speech.SetLanguage(VoiceTag(lang))
	return &Controller{
		speech:    cfg.Speech,
		lessons:   cfg.Lessons,
		coach:     cfg.Coach,
		progress:  cfg.Progress,
		practice:  cfg.Practice,
		events:    cfg.Events,
		observer:  cfg.Observer,
		metrics:   cfg.Metrics,
		childName: cfg.ChildName,
		clock:     cfg.Clock,
		language:  lang,
	}, nil
}

// Activate turns instruction mode on and aligns the voice with the current
// language.
func (c *Controller) Activate() {
	c.mu.Lock()
	c.active = true
	lang := c.language
	c.mu.Unlock()
	c.speech.SetLanguage(VoiceTag(lang))
}

// Deactivate turns instruction mode off. A running lesson is cancelled
// without completion and all pending speech is dropped.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	c.active = false
	old := c.detachLocked()
	c.mu.Unlock()

	c.cancelSession(old)
	c.observer.Expect("", false)
}

// Stop cancels the running lesson without completion and leaves
// instruction mode as it is. It returns [ErrNoSession] when nothing runs.
func (c *Controller) Stop() error {
	c.mu.Lock()
	old := c.detachLocked()
	c.mu.Unlock()
	if old == nil {
		return ErrNoSession
	}
	c.cancelSession(old)
	c.observer.Expect("", false)
	return nil
}

// IsActive reports whether instruction mode is on.
func (c *Controller) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Close deactivates the controller.
func (c *Controller) Close() error {
	c.Deactivate()
	return nil
}

// StartLesson starts the lesson with the given id.
func (c *Controller) StartLesson(ctx context.Context, id string) (*lesson.Lesson, error) {
	l, err := c.lessons.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.start(ctx, l)
	return l, nil
}

// StartWordLesson generates a spelling lesson for word in the current
// language and starts it.
func (c *Controller) StartWordLesson(ctx context.Context, word string) (*lesson.Lesson, error) {
	l, err := lesson.FromWord(word, c.Language())
	if err != nil {
		return nil, err
	}
	c.start(ctx, l)
	return l, nil
}

// StartPracticeLesson builds a practice lesson from the letters the child
// struggles with and starts it.
func (c *Controller) StartPracticeLesson(ctx context.Context) (*lesson.Lesson, error) {
	if c.practice == nil {
		return nil, ErrPracticeUnavailable
	}
	l, err := c.practice.PracticeLesson(ctx, c.Language(), nil)
	if err != nil {
		return nil, err
	}
	c.start(ctx, l)
	return l, nil
}

// StartCustom starts an already built lesson.
func (c *Controller) StartCustom(ctx context.Context, l *lesson.Lesson) {
	c.start(ctx, l)
}

// start activates instruction mode and replaces any running session with a
// new one for l.
func (c *Controller) start(ctx context.Context, l *lesson.Lesson) {
	// Coaching calls made by the session become children of the lesson span.
	spanCtx, span := observe.StartLessonSpan(ctx, l.ID, l.Language, l.Len())
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(spanCtx))
	child := c.ChildName()

	var s *session.Session
	s, err := session.New(l, session.Config{
		Speech:     c.speech,
		Observer:   c.observer,
		OnComplete: func(rep session.Report) { c.complete(s, l, rep) },
		Clock:      c.clock,
		ChildName:  child,
		Context:    sessCtx,
	})
	if err != nil {
		// Only nil arguments fail, and both are checked in NewController.
		cancel()
		observe.RecordError(span, err)
		span.End()
		slog.Error("app: create session", "lesson", l.ID, "err", err)
		return
	}

	c.mu.Lock()
	wasActive := c.active
	c.active = true
	old := c.detachLocked()
	c.sess = s
	c.cancel = cancel
	c.span = span
	lang := c.language
	c.mu.Unlock()

	c.cancelSession(old)
	if !wasActive {
		c.speech.SetLanguage(VoiceTag(lang))
	}

	slog.Info("lesson started", "lesson", l.ID, "title", l.Title, "language", l.Language, "steps", l.Len())
	c.metrics.LessonStarted(ctx, l.ID)
	c.publish(ctx, events.Event{
		Kind:        events.LessonStarted,
		LessonID:    l.ID,
		LessonTitle: l.Title,
		Language:    l.Language,
	})
	s.Start()
}

// detachLocked removes the running session and returns it with its cancel
// func. Must be called with c.mu held.
func (c *Controller) detachLocked() *detached {
	if c.sess == nil {
		return nil
	}
	d := &detached{sess: c.sess, cancel: c.cancel, span: c.span}
	c.sess, c.cancel, c.span = nil, nil, nil
	return d
}

type detached struct {
	sess   *session.Session
	cancel context.CancelFunc
	span   trace.Span
}

// cancelSession stops a detached session and everything it queued.
func (c *Controller) cancelSession(d *detached) {
	if d == nil {
		return
	}
	d.sess.Cancel()
	d.cancel()
	c.speech.Cancel()

	l := d.sess.Lesson()
	rep := d.sess.Report()
	slog.Info("lesson cancelled", "lesson", l.ID, "attempts", rep.TotalAttempts)
	observe.EndLessonSpan(d.span, "cancelled", rep.TotalAttempts, rep.CorrectAttempts)
	ctx := context.Background()
	c.metrics.LessonEnded(ctx, l.ID, false, rep.Duration)
	c.publish(ctx, events.Event{
		Kind:            events.LessonCancelled,
		LessonID:        l.ID,
		LessonTitle:     l.Title,
		Language:        l.Language,
		TotalAttempts:   rep.TotalAttempts,
		CorrectAttempts: rep.CorrectAttempts,
		DurationMS:      rep.Duration.Milliseconds(),
	})
}

// HandleInput routes one input (a typed key, a recognised letter, a
// detected label) into the running session. It returns session.Ignored when
// instruction mode is off or no lesson is running.
func (c *Controller) HandleInput(raw string) session.Outcome {
	c.mu.Lock()
	s := c.sess
	active := c.active
	c.mu.Unlock()
	if !active || s == nil {
		return session.Ignored
	}

	step := s.CurrentStep()
	out := s.HandleInput(raw)
	if out == session.Ignored {
		return out
	}

	ctx := context.Background()
	c.metrics.RecordAttempt(ctx, s.Lesson().ID, out.String())
	if c.practice != nil && step.Kind == lesson.KindPrompt {
		if err := c.practice.Record(ctx, step.Expected, out == session.Correct); err != nil {
			slog.Warn("app: record letter result", "letter", step.Expected, "err", err)
		}
	}
	return out
}

// complete runs on the session's completion goroutine.
func (c *Controller) complete(s *session.Session, l *lesson.Lesson, rep session.Report) {
	c.mu.Lock()
	if c.sess != s {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	span := c.span
	c.span = nil
	lang := c.language
	child := c.childName
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(trace.ContextWithSpan(context.Background(), span), completionTimeout)
	defer cancel()
	defer observe.EndLessonSpan(span, "completed", rep.TotalAttempts, rep.CorrectAttempts)

	done := Completion{
		LessonID:    l.ID,
		LessonTitle: l.Title,
		Language:    l.Language,
		Report:      rep,
		Accuracy:    accuracy(rep),
	}
	slog.Info("lesson completed", "lesson", l.ID, "attempts", rep.TotalAttempts, "correct", rep.CorrectAttempts, "duration", rep.Duration)
	c.metrics.LessonEnded(ctx, l.ID, true, rep.Duration)

	if c.progress != nil {
		if _, err := c.progress.SaveReport(ctx, l, rep); err != nil {
			slog.Warn("app: save lesson record", "lesson", l.ID, "err", err)
		} else if stars, err := c.progress.Stars(ctx); err == nil {
			done.Stars = stars
		}
	}

	c.publish(ctx, events.Event{
		Kind:            events.LessonCompleted,
		LessonID:        l.ID,
		LessonTitle:     l.Title,
		Language:        l.Language,
		ChildName:       child,
		TotalAttempts:   rep.TotalAttempts,
		CorrectAttempts: rep.CorrectAttempts,
		DurationMS:      rep.Duration.Milliseconds(),
		Stars:           done.Stars,
	})

	done.Summary = CannedSummary(lang, rep)
	if text := c.coach.Summarize(ctx, coach.SessionSummary{
		LessonTitle:     l.Title,
		Language:        lang,
		TotalAttempts:   rep.TotalAttempts,
		CorrectAttempts: rep.CorrectAttempts,
		Duration:        rep.Duration,
		ChildName:       child,
	}); text != "" {
		done.Summary = text
	}

	// A lesson started meanwhile owns the voice now.
	c.mu.Lock()
	speak := c.active && c.sess == nil
	c.mu.Unlock()
	if speak {
		c.speech.Speak(done.Summary, nil)
	}

	c.observer.Expect("", false)
	c.observer.Completed(done)
}

func (c *Controller) publish(ctx context.Context, e events.Event) {
	if e.Time.IsZero() {
		e.Time = c.clock()
	}
	if err := c.events.Publish(ctx, e); err != nil {
		slog.Warn("app: publish event", "kind", e.Kind, "lesson", e.LessonID, "err", err)
	}
}

// SetLanguage switches the tutor's language. Pending speech is dropped and
// a running lesson is cancelled, since its narration is in the old
// language.
func (c *Controller) SetLanguage(lang string) error {
	base := BaseLanguage(lang)
	if base == "" {
		return fmt.Errorf("app: empty language tag")
	}

	c.mu.Lock()
	c.language = base
	old := c.detachLocked()
	c.mu.Unlock()

	if old != nil {
		c.cancelSession(old)
		c.observer.Expect("", false)
	} else {
		c.speech.Cancel()
	}
	c.speech.SetLanguage(VoiceTag(base))
	if ls, ok := c.observer.(languageSetter); ok {
		ls.SetLanguage(base)
	}
	return nil
}

// SetChildName changes the name used in coaching from the next lesson on.
func (c *Controller) SetChildName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.childName = name
}

// ChildName returns the name used in coaching.
func (c *Controller) ChildName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childName
}

// Language returns the current base language tag.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.language
}

// Expected returns the answer the running lesson waits for.
func (c *Controller) Expected() (string, bool) {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()
	if s == nil || s.Phase() != session.PhaseAwaitingInput {
		return "", false
	}
	return s.CurrentStep().Expected, true
}

// Status returns a snapshot of the controller and its running lesson.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{Active: c.active, Language: c.language}
	s := c.sess
	c.mu.Unlock()
	if s == nil {
		return st
	}

	l := s.Lesson()
	step := s.CurrentStep()
	phase := s.Phase()
	st.LessonID = l.ID
	st.LessonTitle = l.Title
	st.StepID = step.ID
	st.StepIndex = s.CurrentIndex()
	st.TotalSteps = l.Len()
	st.Phase = phase.String()
	st.Attempts = s.Attempts()
	if phase == session.PhaseAwaitingInput {
		st.Expected = step.Expected
	}
	return st
}

// CannedSummary is the completion message used when no coach reply is
// available.
func CannedSummary(lang string, rep session.Report) string {
	pct := accuracy(rep)
	if BaseLanguage(lang) == "fr" {
		return fmt.Sprintf("Tu as appuyé sur %d touche(s). %d bonnes réponses (%d%%) !", rep.TotalAttempts, rep.CorrectAttempts, pct)
	}
	return fmt.Sprintf("You pressed %d key(s). %d correct (%d%%)!", rep.TotalAttempts, rep.CorrectAttempts, pct)
}

func accuracy(rep session.Report) int {
	if rep.TotalAttempts == 0 {
		return 100
	}
	return (rep.CorrectAttempts*100 + rep.TotalAttempts/2) / rep.TotalAttempts
}

// voiceTags maps base languages to the voice used for them.
var voiceTags = map[string]string{
	"en": "en-US",
	"fr": "fr-FR",
}

// VoiceTag returns the voice language for a base language tag. Unknown
// languages are returned unchanged.
func VoiceTag(lang string) string {
	if tag, ok := voiceTags[BaseLanguage(lang)]; ok {
		return tag
	}
	return lang
}

// BaseLanguage returns the lowercase primary subtag of tag.
func BaseLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
