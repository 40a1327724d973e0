package app_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/app"
	"github.com/MrWong99/readalong/internal/events"
	eventsmock "github.com/MrWong99/readalong/internal/events/mock"
	statsmemory "github.com/MrWong99/readalong/internal/letterstats/memory"
	"github.com/MrWong99/readalong/internal/library"
	"github.com/MrWong99/readalong/internal/progress"
	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/internal/store"
	storememory "github.com/MrWong99/readalong/internal/store/memory"
	"github.com/MrWong99/readalong/pkg/coach"
	coachmock "github.com/MrWong99/readalong/pkg/coach/mock"
	"github.com/MrWong99/readalong/pkg/lesson"
	"github.com/MrWong99/readalong/pkg/speech"
	speechmock "github.com/MrWong99/readalong/pkg/speech/mock"
)

// recorder is an app.Observer that records what it is told.
type recorder struct {
	mu        sync.Mutex
	expects   []string
	languages []string
	done      chan app.Completion
}

func newRecorder() *recorder { return &recorder{done: make(chan app.Completion, 4)} }

func (r *recorder) Progress(int, int) {}

func (r *recorder) Expect(answer string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !ok {
		answer = "-"
	}
	r.expects = append(r.expects, answer)
}

func (r *recorder) Completed(c app.Completion) { r.done <- c }

func (r *recorder) SetLanguage(lang string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages = append(r.languages, lang)
}

func (r *recorder) lastExpect() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.expects) == 0 {
		return ""
	}
	return r.expects[len(r.expects)-1]
}

type fixture struct {
	ctrl     *app.Controller
	backend  *speechmock.Backend
	queue    *speech.Queue
	obs      *recorder
	events   *eventsmock.Publisher
	store    *storememory.Store
	stats    *statsmemory.Store
	coach    *coachmock.Coach
	tracker  *progress.Tracker
	practice *progress.Repetition
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: &speechmock.Backend{},
		obs:     newRecorder(),
		events:  &eventsmock.Publisher{},
		store:   storememory.New(),
		stats:   statsmemory.New(),
		coach:   &coachmock.Coach{SummarizeErr: errors.New("offline")},
	}
	f.queue = speech.NewQueue(f.backend)
	t.Cleanup(func() { _ = f.queue.Close() })

	cat, err := lesson.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	f.tracker = progress.NewTracker(f.store)
	f.practice = progress.NewRepetition(f.stats)

	ctrl, err := app.NewController(app.ControllerConfig{
		Speech:   f.queue,
		Lessons:  library.New(cat, f.store),
		Coach:    coach.Guard(f.coach, coach.WithTimeout(200*time.Millisecond)),
		Progress: f.tracker,
		Practice: f.practice,
		Events:   f.events,
		Observer: f.obs,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	f.ctrl = ctrl
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// awaiting waits until the controller's lesson expects answer.
func (f *fixture) awaiting(t *testing.T, answer string) {
	t.Helper()
	waitFor(t, "prompt "+answer, func() bool {
		got, ok := f.ctrl.Expected()
		return ok && got == answer
	})
}

func (f *fixture) completion(t *testing.T) app.Completion {
	t.Helper()
	select {
	case c := <-f.obs.done:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("lesson never completed")
		return app.Completion{}
	}
}

func TestController_WordLessonCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if f.ctrl.IsActive() {
		t.Fatal("controller active before start")
	}
	l, err := f.ctrl.StartWordLesson(ctx, "Cat")
	if err != nil {
		t.Fatalf("StartWordLesson: %v", err)
	}
	if !f.ctrl.IsActive() {
		t.Fatal("starting a lesson should activate instruction mode")
	}

	f.awaiting(t, "c")
	if got := f.ctrl.HandleInput("x"); got != session.Incorrect {
		t.Fatalf("HandleInput(x) = %v", got)
	}
	for _, letter := range []string{"C", "a", "t"} {
		f.awaiting(t, strings.ToLower(letter))
		if got := f.ctrl.HandleInput(letter); got != session.Correct {
			t.Fatalf("HandleInput(%q) = %v", letter, got)
		}
	}

	done := f.completion(t)
	if done.LessonID != l.ID || done.Report.TotalAttempts != 4 || done.Report.CorrectAttempts != 3 {
		t.Errorf("completion = %+v", done)
	}
	if done.Accuracy != 75 || done.Stars != 1 {
		t.Errorf("accuracy = %d, stars = %d, want 75, 1", done.Accuracy, done.Stars)
	}
	if want := "You pressed 4 key(s). 3 correct (75%)!"; done.Summary != want {
		t.Errorf("summary = %q, want %q", done.Summary, want)
	}

	recs, _ := f.tracker.History(ctx)
	if len(recs) != 1 || recs[0].LessonID != l.ID {
		t.Errorf("history = %+v", recs)
	}
	stats, _ := f.stats.All(ctx)
	var c int
	for _, s := range stats {
		if s.Letter == "c" {
			c = s.Mistakes
		}
	}
	if c != 1 {
		t.Errorf("mistakes on c = %d, want 1", c)
	}

	waitFor(t, "summary spoken", func() bool {
		return slices.Contains(f.backend.Texts(), done.Summary)
	})
	if got := f.events.Kinds(); !slices.Equal(got, []events.Kind{events.LessonStarted, events.LessonCompleted}) {
		t.Errorf("events = %v", got)
	}
	if st := f.ctrl.Status(); st.LessonID != "" || !st.Active {
		t.Errorf("status after completion = %+v", st)
	}
}

func TestController_CoachSummary(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.coach.SummarizeErr = nil
	f.coach.SummarizeText = "Bravo, you spelled OX!"

	if _, err := f.ctrl.StartWordLesson(context.Background(), "ox"); err != nil {
		t.Fatal(err)
	}
	for _, letter := range []string{"o", "x"} {
		f.awaiting(t, letter)
		f.ctrl.HandleInput(letter)
	}
	if got := f.completion(t).Summary; got != "Bravo, you spelled OX!" {
		t.Errorf("summary = %q", got)
	}
}

func TestController_InputIgnoredWhenInactive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := f.ctrl.HandleInput("a"); got != session.Ignored {
		t.Errorf("HandleInput without session = %v", got)
	}

	if _, err := f.ctrl.StartLesson(context.Background(), "lesson-cat-en"); err != nil {
		t.Fatalf("StartLesson: %v", err)
	}
	f.awaiting(t, "c")

	f.ctrl.Deactivate()
	if f.ctrl.IsActive() {
		t.Fatal("still active after Deactivate")
	}
	if got := f.ctrl.HandleInput("c"); got != session.Ignored {
		t.Errorf("HandleInput after Deactivate = %v", got)
	}
	if f.obs.lastExpect() != "-" {
		t.Errorf("expected highlight cleared, last = %q", f.obs.lastExpect())
	}
	if got := f.events.Kinds(); !slices.Equal(got, []events.Kind{events.LessonStarted, events.LessonCancelled}) {
		t.Errorf("events = %v", got)
	}
	select {
	case c := <-f.obs.done:
		t.Fatalf("cancelled lesson completed: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestController_StopKeepsModeActive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if err := f.ctrl.Stop(); !errors.Is(err, app.ErrNoSession) {
		t.Errorf("Stop without session = %v, want ErrNoSession", err)
	}
	if _, err := f.ctrl.StartLesson(context.Background(), "lesson-cat-en"); err != nil {
		t.Fatalf("StartLesson: %v", err)
	}
	f.awaiting(t, "c")

	if err := f.ctrl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !f.ctrl.IsActive() {
		t.Error("Stop should leave instruction mode on")
	}
	if st := f.ctrl.Status(); st.LessonID != "" {
		t.Errorf("status after Stop = %+v", st)
	}
	if got := f.events.Kinds(); !slices.Equal(got, []events.Kind{events.LessonStarted, events.LessonCancelled}) {
		t.Errorf("events = %v", got)
	}
}

func TestController_StartReplacesSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ctrl.StartLesson(ctx, "lesson-cat-en")
	if err != nil {
		t.Fatal(err)
	}
	f.awaiting(t, "c")
	second, err := f.ctrl.StartLesson(ctx, "lesson-dog-en")
	if err != nil {
		t.Fatal(err)
	}
	f.awaiting(t, "d")

	st := f.ctrl.Status()
	if st.LessonID != second.ID || st.Expected != "d" || st.Phase != "awaiting_input" || st.TotalSteps != second.Len() {
		t.Errorf("status = %+v", st)
	}
	want := []events.Kind{events.LessonStarted, events.LessonCancelled, events.LessonStarted}
	if got := f.events.Kinds(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := f.events.Events()[1].LessonID; got != first.ID {
		t.Errorf("cancelled lesson = %q, want %q", got, first.ID)
	}
}

func TestController_StartErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ctrl.StartLesson(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("StartLesson(missing) err = %v", err)
	}
	if _, err := f.ctrl.StartWordLesson(ctx, "  "); !errors.Is(err, lesson.ErrInvalidInput) {
		t.Errorf("StartWordLesson(blank) err = %v", err)
	}
	if _, err := f.ctrl.StartPracticeLesson(ctx); !errors.Is(err, progress.ErrNothingToPractice) {
		t.Errorf("StartPracticeLesson err = %v", err)
	}
	if f.ctrl.IsActive() {
		t.Error("failed starts must not activate")
	}
}

func TestController_PracticeLesson(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now()
	for range 3 {
		if _, err := f.stats.Record(ctx, "q", false, now); err != nil {
			t.Fatal(err)
		}
	}
	l, err := f.ctrl.StartPracticeLesson(ctx)
	if err != nil {
		t.Fatalf("StartPracticeLesson: %v", err)
	}
	if !strings.HasPrefix(l.ID, "practice-weak-") {
		t.Errorf("id = %q", l.ID)
	}
	f.awaiting(t, "q")
}

func TestController_SetLanguage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.ctrl.StartWordLesson(ctx, "sun"); err != nil {
		t.Fatal(err)
	}
	f.awaiting(t, "s")

	if err := f.ctrl.SetLanguage("fr-CA"); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	if got := f.ctrl.Language(); got != "fr" {
		t.Errorf("Language = %q, want fr", got)
	}
	if got := f.queue.Language(); got != "fr-FR" {
		t.Errorf("voice = %q, want fr-FR", got)
	}
	if st := f.ctrl.Status(); st.LessonID != "" || !st.Active {
		t.Errorf("status = %+v, want active without lesson", st)
	}
	f.obs.mu.Lock()
	langs := slices.Clone(f.obs.languages)
	f.obs.mu.Unlock()
	if !slices.Equal(langs, []string{"fr"}) {
		t.Errorf("observer languages = %v", langs)
	}

	l, err := f.ctrl.StartWordLesson(ctx, "lune")
	if err != nil {
		t.Fatal(err)
	}
	if l.Language != "fr" {
		t.Errorf("word lesson language = %q", l.Language)
	}
	if err := f.ctrl.SetLanguage(" "); err == nil {
		t.Error("blank language accepted")
	}
}

func TestFanout(t *testing.T) {
	t.Parallel()
	a, b := newRecorder(), newRecorder()
	plain := &struct{ session.NopObserver }{}
	fan := app.Fanout{a, plain, b}

	fan.Expect("k", true)
	fan.SetLanguage("fr")
	fan.Completed(app.Completion{LessonID: "x"})

	for _, r := range []*recorder{a, b} {
		if r.lastExpect() != "k" || len(r.languages) != 1 || len(r.done) != 1 {
			t.Errorf("recorder = %+v", r)
		}
	}
}

func TestCannedSummary(t *testing.T) {
	t.Parallel()
	rep := session.Report{TotalAttempts: 3, CorrectAttempts: 2}
	if got := app.CannedSummary("fr-FR", rep); got != "Tu as appuyé sur 3 touche(s). 2 bonnes réponses (67%) !" {
		t.Errorf("fr = %q", got)
	}
	if got := app.CannedSummary("en", session.Report{}); got != "You pressed 0 key(s). 0 correct (100%)!" {
		t.Errorf("empty = %q", got)
	}
	if app.VoiceTag("fr") != "fr-FR" || app.VoiceTag("de") != "de" {
		t.Error("VoiceTag mapping")
	}
}
