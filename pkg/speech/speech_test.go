package speech_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/readalong/pkg/coach"
	coachmock "github.com/MrWong99/readalong/pkg/coach/mock"
	"github.com/MrWong99/readalong/pkg/provider/tts"
	ttsmock "github.com/MrWong99/readalong/pkg/provider/tts/mock"
	"github.com/MrWong99/readalong/pkg/speech"
	"github.com/MrWong99/readalong/pkg/speech/mock"
)

// await waits for one outcome or fails the test after two seconds.
func await(t *testing.T, ch <-chan speech.Outcome) speech.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	o, err := speech.Await(ctx, ch)
	if err != nil {
		t.Fatalf("timed out waiting for speech outcome")
	}
	return o
}

// recorder collects events from backend hooks and callbacks in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func TestQueue_FIFOCallbackBeforeNext(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	b := &mock.Backend{
		Delay: 5 * time.Millisecond,
		OnSay: func(u speech.Utterance) { rec.add("say " + u.Text) },
	}
	q := speech.NewQueue(b)
	defer q.Close()

	x := q.Speak("X", func() { rec.add("done X") })
	y := q.Speak("Y", func() { rec.add("done Y") })
	z := q.Speak("Z", nil)

	for _, ch := range []<-chan speech.Outcome{x, y, z} {
		if o := await(t, ch); o != speech.Completed {
			t.Fatalf("outcome = %v, want completed", o)
		}
	}

	want := []string{"say X", "done X", "say Y", "done Y", "say Z"}
	if got := rec.get(); !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestQueue_ConcurrentSubmittersNeverOverlap(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		active  int
		overlap bool
	)
	b := &mock.Backend{Delay: time.Millisecond}
	b.OnSay = func(speech.Utterance) {
		mu.Lock()
		active++
		if active > 1 {
			overlap = true
		}
		mu.Unlock()
	}
	q := speech.NewQueue(b)
	defer q.Close()

	var wg sync.WaitGroup
	outcomes := make(chan (<-chan speech.Outcome), 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes <- q.Speak(string(rune('a'+i)), func() {
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	close(outcomes)
	for ch := range outcomes {
		await(t, ch)
	}

	if overlap {
		t.Error("two utterances were playing at the same time")
	}
	if got := len(b.Texts()); got != 20 {
		t.Errorf("spoke %d utterances, want 20", got)
	}
}

func TestQueue_BackendErrorCountsAsDone(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{SayErr: errors.New("no voice")}
	q := speech.NewQueue(b)
	defer q.Close()

	called := make(chan struct{}, 1)
	if o := await(t, q.Speak("hello", func() { called <- struct{}{} })); o != speech.Completed {
		t.Fatalf("outcome = %v, want completed", o)
	}
	select {
	case <-called:
	default:
		t.Fatal("callback did not run after backend error")
	}
	if o := await(t, q.Speak("again", nil)); o != speech.Completed {
		t.Errorf("queue stalled after backend error: %v", o)
	}
}

func TestQueue_CancelDropsPendingAndInterrupts(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	b := &mock.Backend{
		Gate:  make(chan struct{}),
		OnSay: func(speech.Utterance) { started <- struct{}{} },
	}
	q := speech.NewQueue(b)
	defer q.Close()

	var fired atomic.Bool
	cb := func() { fired.Store(true) }

	a := q.Speak("A", cb)
	bb := q.Speak("B", cb)
	c := q.Speak("C", cb)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first utterance never started")
	}
	stopsBefore := b.Stops()
	q.Cancel()

	for name, ch := range map[string]<-chan speech.Outcome{"A": a, "B": bb, "C": c} {
		if o := await(t, ch); o != speech.Cancelled {
			t.Errorf("%s outcome = %v, want cancelled", name, o)
		}
	}
	if fired.Load() {
		t.Error("a callback ran after Cancel")
	}
	if got := b.Texts(); !slices.Equal(got, []string{"A"}) {
		t.Errorf("spoken = %v, want [A]", got)
	}
	if b.Stops() <= stopsBefore {
		t.Error("Cancel did not stop the backend")
	}
	if q.Busy() {
		t.Error("queue still busy after Cancel")
	}

	// The queue keeps working after a cancel.
	b.SetGate(nil)
	if o := await(t, q.Speak("D", nil)); o != speech.Completed {
		t.Errorf("after cancel outcome = %v, want completed", o)
	}
}

func TestQueue_StopsBackendBeforeEachUtterance(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	q := speech.NewQueue(b)
	defer q.Close()

	await(t, q.Speak("one", nil))
	await(t, q.Speak("two", nil))
	if got := b.Stops(); got < 2 {
		t.Errorf("backend stopped %d times, want at least 2", got)
	}
}

func TestQueue_UtteranceDefaults(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	q := speech.NewQueue(b)
	defer q.Close()

	await(t, q.Speak("hi", nil))
	q.SetLanguage("fr-FR")
	await(t, q.Speak("salut", nil))
	await(t, q.SpeakUtterance(speech.Utterance{Text: "fast", Rate: 1.5}, nil))

	got := b.Utterances()
	if got[0].Language != speech.DefaultLanguage || got[0].Rate != speech.DefaultRate || got[0].Pitch != speech.DefaultPitch {
		t.Errorf("defaults = %+v", got[0])
	}
	if got[1].Language != "fr-FR" {
		t.Errorf("language after SetLanguage = %q", got[1].Language)
	}
	if got[2].Rate != 1.5 || got[2].Language != "fr-FR" {
		t.Errorf("explicit utterance = %+v", got[2])
	}
	if q.Language() != "fr-FR" {
		t.Errorf("Language() = %q", q.Language())
	}
}

func TestQueue_CloseIdempotent(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{Gate: make(chan struct{})}
	q := speech.NewQueue(b)
	pending := q.Speak("never", nil)

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if o := await(t, pending); o != speech.Cancelled {
		t.Errorf("pending outcome = %v, want cancelled", o)
	}
	if o := await(t, q.Speak("late", nil)); o != speech.Cancelled {
		t.Errorf("outcome after Close = %v, want cancelled", o)
	}
}

func TestQueue_Observer(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []error
	b := &mock.Backend{SayErr: errors.New("boom")}
	q := speech.NewQueue(b, speech.WithObserver(func(_ speech.Utterance, _ time.Duration, err error) {
		mu.Lock()
		seen = append(seen, err)
		mu.Unlock()
	}))
	defer q.Close()

	await(t, q.Speak("x", nil))
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] == nil {
		t.Errorf("observer saw %v", seen)
	}
}

func TestSpeakDynamic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		coach *coachmock.Coach
		want  string
	}{
		{"dynamic text", &coachmock.Coach{EncourageText: "Super job, Mia!"}, "Super job, Mia!"},
		{"empty reply", &coachmock.Coach{EncourageText: "   "}, "Great! C!"},
		{"coach error", &coachmock.Coach{EncourageErr: errors.New("offline")}, "Great! C!"},
		{"coach timeout", &coachmock.Coach{EncourageText: "too late", Delay: time.Second}, "Great! C!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &mock.Backend{}
			g := coach.Guard(tt.coach, coach.WithTimeout(30*time.Millisecond))
			q := speech.NewQueue(b, speech.WithEncourager(g), speech.WithLanguage("en-GB"))
			defer q.Close()

			done := make(chan struct{})
			o := await(t, q.SpeakDynamic(context.Background(), "Great! C!", coach.Context{StepID: "step-0", WasCorrect: true}, func() { close(done) }))
			if o != speech.Completed {
				t.Fatalf("outcome = %v", o)
			}
			<-done
			if got := b.Texts(); !slices.Equal(got, []string{tt.want}) {
				t.Errorf("spoken = %v, want [%s]", got, tt.want)
			}
			calls := tt.coach.Encouragements()
			if len(calls) != 1 || calls[0].Language != "en-GB" {
				t.Errorf("coach calls = %+v", calls)
			}
		})
	}
}

func TestSpeakDynamic_NoEncourager(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	q := speech.NewQueue(b)
	defer q.Close()

	await(t, q.SpeakDynamic(context.Background(), "canned", coach.Context{}, nil))
	if got := b.Texts(); !slices.Equal(got, []string{"canned"}) {
		t.Errorf("spoken = %v", got)
	}
}

func TestSpeakDynamic_CancelDuringFetch(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	c := &coachmock.Coach{EncourageText: "late", Delay: 50 * time.Millisecond}
	q := speech.NewQueue(b, speech.WithEncourager(coach.Guard(c)))
	defer q.Close()

	ch := q.SpeakDynamic(context.Background(), "canned", coach.Context{}, func() { t.Error("callback ran") })
	time.Sleep(10 * time.Millisecond)
	q.Cancel()

	if o := await(t, ch); o != speech.Cancelled {
		t.Errorf("outcome = %v, want cancelled", o)
	}
	if got := b.Texts(); len(got) != 0 {
		t.Errorf("spoken = %v, want nothing", got)
	}
}

// slowOnMistakes answers correct attempts at once and mistakes after delay.
// It never has replacement text.
type slowOnMistakes struct{ delay time.Duration }

func (e slowOnMistakes) Encourage(ctx context.Context, c coach.Context) string {
	if !c.WasCorrect {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
		}
	}
	return ""
}

func TestSpeakDynamic_KeepsSubmissionOrder(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	q := speech.NewQueue(b, speech.WithEncourager(slowOnMistakes{delay: 100 * time.Millisecond}))
	defer q.Close()

	q.SpeakDynamic(context.Background(), "Try again! Find the A.", coach.Context{WasCorrect: false}, nil)
	q.SpeakDynamic(context.Background(), "Great! A!", coach.Context{WasCorrect: true}, nil)
	await(t, q.Speak("Press the letter B!", nil))

	want := []string{"Try again! Find the A.", "Great! A!", "Press the letter B!"}
	if got := b.Texts(); !slices.Equal(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
}

func TestSpeakDynamic_DynamicTimeout(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	q := speech.NewQueue(b,
		speech.WithEncourager(slowOnMistakes{delay: time.Minute}),
		speech.WithDynamicTimeout(20*time.Millisecond),
	)
	defer q.Close()

	start := time.Now()
	if o := await(t, q.SpeakDynamic(context.Background(), "canned", coach.Context{}, nil)); o != speech.Completed {
		t.Fatalf("outcome = %v", o)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("queue held the entry for %v", elapsed)
	}
	if got := b.Texts(); !slices.Equal(got, []string{"canned"}) {
		t.Errorf("spoken = %v", got)
	}
}

func TestSpeakDynamic_CallerContextCancelled(t *testing.T) {
	t.Parallel()

	b := &mock.Backend{}
	q := speech.NewQueue(b, speech.WithEncourager(slowOnMistakes{delay: time.Minute}))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := q.SpeakDynamic(ctx, "stale", coach.Context{}, func() { t.Error("callback ran") })
	next := q.Speak("next", nil)
	cancel()

	if o := await(t, ch); o != speech.Cancelled {
		t.Errorf("outcome = %v, want cancelled", o)
	}
	await(t, next)
	if got := b.Texts(); !slices.Equal(got, []string{"next"}) {
		t.Errorf("spoken = %v, want [next]", got)
	}
}

func TestTTSBackend(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeResult: tts.Audio{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}}
	sink := &mock.Sink{}
	b := speech.NewTTSBackend(p, sink, "p225")

	start := time.Now()
	if err := b.Say(context.Background(), speech.Utterance{Text: "hi", Language: "fr-FR", Rate: 0.85}); err != nil {
		t.Fatalf("Say: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Say returned before the audio duration elapsed")
	}
	if sink.Plays() != 1 {
		t.Errorf("sink plays = %d, want 1", sink.Plays())
	}
	call := p.SynthesizeCalls[0]
	if call.Text != "hi" || call.Options.VoiceID != "p225" || call.Options.Language != "fr-FR" || call.Options.Rate != 0.85 {
		t.Errorf("synthesize call = %+v", call)
	}

	b.Stop()
	if sink.StopCount != 1 {
		t.Errorf("sink stops = %d, want 1", sink.StopCount)
	}
}

func TestTTSBackend_SynthesizeError(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeErr: errors.New("down")}
	sink := &mock.Sink{}
	b := speech.NewTTSBackend(p, sink, "")
	if err := b.Say(context.Background(), speech.Utterance{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if sink.Plays() != 0 {
		t.Error("sink played audio after synthesis failed")
	}
}
