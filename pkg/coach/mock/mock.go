// Package mock provides a test double for the coach.Coach interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/readalong/pkg/coach"
)

// Coach is a mock implementation of coach.Coach. Delay, when set, is waited
// (or the context's cancellation, whichever comes first) before replying.
type Coach struct {
	mu sync.Mutex

	// EncourageText and EncourageErr are returned by Encourage.
	EncourageText string
	EncourageErr  error

	// SummarizeText and SummarizeErr are returned by Summarize.
	SummarizeText string
	SummarizeErr  error

	// ExplainText and ExplainErr are returned by ExplainSyllables.
	ExplainText string
	ExplainErr  error

	// Delay postpones every reply.
	Delay time.Duration

	// EncourageCalls records every Context passed to Encourage.
	EncourageCalls []coach.Context

	// SummarizeCalls records every SessionSummary passed to Summarize.
	SummarizeCalls []coach.SessionSummary

	// ExplainCalls records the word of every ExplainSyllables call.
	ExplainCalls []string
}

func (c *Coach) wait(ctx context.Context) error {
	c.mu.Lock()
	d := c.Delay
	c.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Encourage records the call and returns EncourageText, EncourageErr.
func (c *Coach) Encourage(ctx context.Context, cc coach.Context) (string, error) {
	c.mu.Lock()
	c.EncourageCalls = append(c.EncourageCalls, cc)
	c.mu.Unlock()
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.EncourageText, c.EncourageErr
}

// Summarize records the call and returns SummarizeText, SummarizeErr.
func (c *Coach) Summarize(ctx context.Context, s coach.SessionSummary) (string, error) {
	c.mu.Lock()
	c.SummarizeCalls = append(c.SummarizeCalls, s)
	c.mu.Unlock()
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SummarizeText, c.SummarizeErr
}

// ExplainSyllables records the call and returns ExplainText, ExplainErr.
func (c *Coach) ExplainSyllables(ctx context.Context, word string, _ []string, _ string) (string, error) {
	c.mu.Lock()
	c.ExplainCalls = append(c.ExplainCalls, word)
	c.mu.Unlock()
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ExplainText, c.ExplainErr
}

// Encouragements returns a copy of the recorded Encourage contexts.
func (c *Coach) Encouragements() []coach.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]coach.Context, len(c.EncourageCalls))
	copy(out, c.EncourageCalls)
	return out
}

// Reset clears all recorded calls.
func (c *Coach) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.EncourageCalls = nil
	c.SummarizeCalls = nil
	c.ExplainCalls = nil
}

// Ensure Coach implements coach.Coach at compile time.
var _ coach.Coach = (*Coach)(nil)
