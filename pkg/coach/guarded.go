package coach

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultTimeout bounds a single coaching request.
const DefaultTimeout = 3 * time.Second

// Guarded wraps a Coach so that every call is bounded by a timeout and never
// fails: an error, a timeout or an empty reply all yield "". It is safe for
// concurrent use. A nil *Guarded or one wrapping a nil Coach always returns "".
type Guarded struct {
	coach   Coach
	timeout time.Duration
	observe func(op string, d time.Duration, ok bool)
}

// GuardOption configures a [Guarded].
type GuardOption func(*Guarded)

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithObserver registers fn to be called after every request with the
// operation name, its latency and whether usable text was produced.
func WithObserver(fn func(op string, d time.Duration, ok bool)) GuardOption {
	return func(g *Guarded) { g.observe = fn }
}

// Guard returns a Guarded around c.
func Guard(c Coach, opts ...GuardOption) *Guarded {
	g := &Guarded{coach: c, timeout: DefaultTimeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Encourage returns generated encouragement or "".
func (g *Guarded) Encourage(ctx context.Context, c Context) string {
	return g.call(ctx, "encourage", func(ctx context.Context) (string, error) {
		return g.coach.Encourage(ctx, c)
	})
}

// Summarize returns a generated lesson summary or "".
func (g *Guarded) Summarize(ctx context.Context, s SessionSummary) string {
	return g.call(ctx, "summarize", func(ctx context.Context) (string, error) {
		return g.coach.Summarize(ctx, s)
	})
}

// ExplainSyllables returns a generated explanation or "".
func (g *Guarded) ExplainSyllables(ctx context.Context, word string, syllables []string, language string) string {
	return g.call(ctx, "explain_syllables", func(ctx context.Context) (string, error) {
		return g.coach.ExplainSyllables(ctx, word, syllables, language)
	})
}

func (g *Guarded) call(ctx context.Context, op string, fn func(context.Context) (string, error)) string {
	if g == nil || g.coach == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	type result struct {
		text string
		err  error
	}
	// The coach may ignore ctx; run it aside so the timeout always holds.
	done := make(chan result, 1)
	go func() {
		text, err := fn(ctx)
		done <- result{text, err}
	}()

	var text string
	select {
	case r := <-done:
		if r.err != nil {
			slog.Debug("coach: request failed, using canned text", "op", op, "err", r.err)
		} else {
			text = strings.TrimSpace(r.text)
		}
	case <-ctx.Done():
		slog.Debug("coach: request timed out, using canned text", "op", op, "timeout", g.timeout)
	}
	if g.observe != nil {
		g.observe(op, time.Since(start), text != "")
	}
	return text
}
