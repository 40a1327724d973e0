package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Option configures a [Queue] during construction.
type Option func(*Queue)

// WithLanguage sets the initial language tag. Defaults to [DefaultLanguage].
func WithLanguage(tag string) Option {
	return func(q *Queue) {
		if tag != "" {
			q.language = tag
		}
	}
}

// WithRate sets the speaking rate. Defaults to [DefaultRate].
func WithRate(r float64) Option {
	return func(q *Queue) {
		if r > 0 {
			q.rate = r
		}
	}
}

// WithPitch sets the voice pitch. Defaults to [DefaultPitch].
func WithPitch(p float64) Option {
	return func(q *Queue) {
		if p > 0 {
			q.pitch = p
		}
	}
}

// WithUtteranceTimeout bounds each backend Say call. Defaults to
// [DefaultUtteranceTimeout].
func WithUtteranceTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.sayTimeout = d
		}
	}
}

// WithDynamicTimeout bounds how long the queue holds a [Queue.SpeakDynamic]
// entry at its head waiting for text before speaking the canned text.
// Defaults to [DefaultDynamicTimeout].
func WithDynamicTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.dynamicTimeout = d
		}
	}
}

// WithEncourager sets the source of dynamic text for [Queue.SpeakDynamic].
func WithEncourager(e Encourager) Option {
	return func(q *Queue) { q.encourager = e }
}

// WithObserver registers fn to be called after every backend Say call with
// the utterance, how long it took, and the backend error (if any).
func WithObserver(fn func(u Utterance, d time.Duration, err error)) Option {
	return func(q *Queue) { q.observe = fn }
}

// entry is one queued utterance.
type entry struct {
	u          Utterance
	onComplete func()
	result     chan Outcome // buffered(1); receives exactly one value

	// Dynamic entries hold their place in the queue while their text is
	// fetched. text delivers the replacement ("" keeps u.Text); caller is the
	// submitter's context.
	text   <-chan string
	caller context.Context
}

func (e *entry) finish(o Outcome) { e.result <- o }

// Queue is a FIFO speech queue with cancellation. It owns a background
// dispatch goroutine that plays one utterance at a time.
//
// All exported methods are safe for concurrent use.
type Queue struct {
	backend        Backend
	sayTimeout     time.Duration
	dynamicTimeout time.Duration
	observe        func(Utterance, time.Duration, error)

	mu            sync.Mutex
	pending       []*entry
	playing       *entry             // currently playing entry, or nil
	cancelPlaying context.CancelFunc // cancels the in-flight Say
	language      string
	rate          float64
	pitch         float64
	encourager    Encourager
	closed        bool

	dynamic sync.WaitGroup // in-flight SpeakDynamic fetches

	notify  chan struct{} // signalled when an entry is enqueued
	done    chan struct{} // closed by Close to stop the dispatch goroutine
	stopped chan struct{} // closed when the dispatch goroutine returns
}

// NewQueue creates a Queue that speaks through backend and starts its
// dispatch goroutine. Call [Queue.Close] to release it.
func NewQueue(backend Backend, opts ...Option) *Queue {
	q := &Queue{
		backend:        backend,
		sayTimeout:     DefaultUtteranceTimeout,
		dynamicTimeout: DefaultDynamicTimeout,
		language:       DefaultLanguage,
		rate:           DefaultRate,
		pitch:          DefaultPitch,
		notify:         make(chan struct{}, 1),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	go q.dispatch()
	return q
}

// Speak enqueues text in the current language. onComplete, when non-nil, is
// called on the queue's goroutine after the utterance finishes and before the
// next one starts; it must not block for long. The returned channel receives
// exactly one Outcome.
func (q *Queue) Speak(text string, onComplete func()) <-chan Outcome {
	q.mu.Lock()
	u := q.utteranceLocked(text)
	q.mu.Unlock()
	return q.SpeakUtterance(u, onComplete)
}

// SpeakUtterance enqueues u as given. Empty Language, Rate or Pitch fields are
// filled with the queue's current settings.
func (q *Queue) SpeakUtterance(u Utterance, onComplete func()) <-chan Outcome {
	return q.enqueue(&entry{u: u, onComplete: onComplete, result: make(chan Outcome, 1)})
}

func (q *Queue) enqueue(e *entry) <-chan Outcome {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		e.finish(Cancelled)
		return e.result
	}
	q.fillLocked(&e.u)
	q.pending = append(q.pending, e)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return e.result
}

// Cancel drops every pending utterance and stops the one in flight. None of
// their callbacks run; their channels receive [Cancelled]. Dynamic entries
// still waiting for their text are dropped with the rest.
func (q *Queue) Cancel() {
	q.mu.Lock()
	dropped := q.cancelLocked()
	q.mu.Unlock()

	q.backend.Stop()
	for _, e := range dropped {
		e.finish(Cancelled)
	}
}

// cancelLocked clears the queue and interrupts playback. The returned entries
// must be finished by the caller after releasing q.mu. Must be called with
// q.mu held.
func (q *Queue) cancelLocked() []*entry {
	dropped := q.pending
	q.pending = nil
	if q.cancelPlaying != nil {
		q.cancelPlaying()
		q.cancelPlaying = nil
	}
	q.playing = nil
	return dropped
}

// SetLanguage changes the language of utterances enqueued afterwards.
func (q *Queue) SetLanguage(tag string) {
	if tag == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.language = tag
}

// Language returns the current language tag.
func (q *Queue) Language() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.language
}

// SetEncourager replaces the dynamic-text source. A nil value disables
// dynamic text.
func (q *Queue) SetEncourager(e Encourager) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.encourager = e
}

// Busy reports whether an utterance is playing or waiting.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing != nil || len(q.pending) > 0
}

// Pending returns the number of utterances waiting to be played.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close cancels everything, waits for the dispatch goroutine and any
// dynamic-text requests to finish, and rejects further submissions. Close is
// idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	dropped := q.cancelLocked()
	q.mu.Unlock()

	q.backend.Stop()
	for _, e := range dropped {
		e.finish(Cancelled)
	}
	close(q.done)
	<-q.stopped
	q.dynamic.Wait()
	return nil
}

func (q *Queue) utteranceLocked(text string) Utterance {
	u := Utterance{Text: text}
	q.fillLocked(&u)
	return u
}

func (q *Queue) fillLocked(u *Utterance) {
	if u.Language == "" {
		u.Language = q.language
	}
	if u.Rate <= 0 {
		u.Rate = q.rate
	}
	if u.Pitch <= 0 {
		u.Pitch = q.pitch
	}
}

// dispatch is the background goroutine that plays queued entries one by one.
func (q *Queue) dispatch() {
	defer close(q.stopped)
	for {
		select {
		case <-q.done:
			return
		case <-q.notify:
		}

		for {
			e, ctx, ok := q.dequeue()
			if !ok {
				break
			}
			q.play(ctx, e)
		}
	}
}

// dequeue pops the head of the queue and marks it as playing.
func (q *Queue) dequeue() (*entry, context.Context, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.pending) == 0 {
		return nil, nil, false
	}
	e := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	ctx, cancel := context.WithCancel(context.Background())
	q.playing = e
	q.cancelPlaying = cancel
	return e, ctx, true
}

// play speaks e and then either runs its callback or, if Cancel interrupted
// it, reports it as cancelled.
func (q *Queue) play(ctx context.Context, e *entry) {
	if e.text != nil && !q.resolve(ctx, e) {
		q.release(e)
		e.finish(Cancelled)
		return
	}

	// Whatever the backend is still doing belongs to nobody.
	q.backend.Stop()

	var err error
	start := time.Now()
	if strings.TrimSpace(e.u.Text) != "" {
		sayCtx, cancel := context.WithTimeout(ctx, q.sayTimeout)
		err = q.backend.Say(sayCtx, e.u)
		cancel()
	}
	elapsed := time.Since(start)

	interrupted := !q.release(e)

	if q.observe != nil {
		q.observe(e.u, elapsed, err)
	}
	if interrupted {
		e.finish(Cancelled)
		return
	}
	if err != nil {
		slog.Debug("speech: backend failed, treating utterance as done", "text", e.u.Text, "err", err)
	}
	if e.onComplete != nil {
		e.onComplete()
	}
	e.finish(Completed)
}

// resolve waits at the head of the queue for a dynamic entry's text, at most
// q.dynamicTimeout. It reports false when the queue was cancelled or the
// submitter's context ended meanwhile; nothing is spoken then.
func (q *Queue) resolve(ctx context.Context, e *entry) bool {
	timer := time.NewTimer(q.dynamicTimeout)
	defer timer.Stop()

	select {
	case text := <-e.text:
		if strings.TrimSpace(text) != "" {
			e.u.Text = text
		}
	case <-timer.C:
		slog.Debug("speech: dynamic text late, speaking canned text", "text", e.u.Text)
	case <-ctx.Done():
		return false
	case <-e.caller.Done():
		return false
	}
	return true
}

// release clears the playing slot if e still holds it. It reports false when
// Cancel took the slot away first.
func (q *Queue) release(e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing != e {
		return false
	}
	q.cancelPlaying()
	q.playing = nil
	q.cancelPlaying = nil
	return true
}
