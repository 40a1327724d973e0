package speech

import (
	"context"

	"github.com/MrWong99/readalong/pkg/coach"
)

// Encourager produces replacement text for canned feedback. It returns "" when
// no dynamic text is available; it never fails. [coach.Guarded] implements it.
type Encourager interface {
	Encourage(ctx context.Context, c coach.Context) string
}

// Compile-time interface assertion.
var _ Encourager = (*coach.Guarded)(nil)

// SpeakDynamic asks the configured [Encourager] for a replacement of canned
// and speaks exactly one of the two texts: the dynamic one when it is
// non-empty, canned otherwise. The entry takes its FIFO place at call time;
// when it reaches the head of the queue the dispatcher waits for the text,
// at most the dynamic timeout, and then speaks canned instead.
//
// If [Queue.Cancel] is called or ctx is cancelled before the entry plays,
// nothing is spoken and the returned channel receives [Cancelled].
func (q *Queue) SpeakDynamic(ctx context.Context, canned string, c coach.Context, onComplete func()) <-chan Outcome {
	q.mu.Lock()
	enc := q.encourager
	closed := q.closed
	timeout := q.dynamicTimeout
	if c.Language == "" {
		c.Language = q.language
	}
	if !closed && enc != nil {
		q.dynamic.Add(1)
	}
	q.mu.Unlock()

	if closed || enc == nil {
		return q.Speak(canned, onComplete)
	}

	text := make(chan string, 1)
	go func() {
		defer q.dynamic.Done()
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		text <- enc.Encourage(fetchCtx, c)
	}()

	return q.enqueue(&entry{
		u:          Utterance{Text: canned},
		onComplete: onComplete,
		result:     make(chan Outcome, 1),
		text:       text,
		caller:     ctx,
	})
}
