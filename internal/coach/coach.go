// Package coach implements the reading coach on top of an LLM provider. It
// builds short child-directed prompts in the lesson's language and protects
// the provider with a circuit breaker so that an offline model is skipped
// quickly instead of delaying every piece of feedback.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/readalong/internal/observe"
	"github.com/MrWong99/readalong/internal/resilience"
	pcoach "github.com/MrWong99/readalong/pkg/coach"
	"github.com/MrWong99/readalong/pkg/provider/llm"
)

// Compile-time interface assertion.
var _ pcoach.Coach = (*LLM)(nil)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 80
)

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("coach: empty reply")

// Config configures an [LLM] coach.
type Config struct {
	// Provider generates the text. Required.
	Provider llm.Provider

	// Temperature defaults to 0.7.
	Temperature float64

	// MaxTokens defaults to 80.
	MaxTokens int

	// Breaker guards Provider. Defaults to a breaker that opens after three
	// consecutive failures.
	Breaker *resilience.CircuitBreaker
}

// LLM is a [pcoach.Coach] backed by an [llm.Provider]. It is safe for
// concurrent use.
type LLM struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	breaker     *resilience.CircuitBreaker
}

// New returns an LLM coach.
func New(cfg Config) (*LLM, error) {
	if cfg.Provider == nil {
		return nil, errors.New("coach: provider is nil")
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:        "coach",
			MaxFailures: 3,
		})
	}
	return &LLM{
		provider:    cfg.Provider,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		breaker:     cfg.Breaker,
	}, nil
}

// Encourage implements [pcoach.Coach].
func (c *LLM) Encourage(ctx context.Context, cc pcoach.Context) (string, error) {
	lang := languageName(cc.Language)
	system := fmt.Sprintf("You are a warm, encouraging reading tutor for young children (ages 4-8). "+
		"Always respond in %s. Keep responses under 2 sentences. Be enthusiastic and positive. Use simple words.", lang)
	return c.complete(ctx, "encourage", cc.Language, system, encouragePrompt(cc))
}

func encouragePrompt(cc pcoach.Context) string {
	child := "The child"
	if cc.ChildName != "" {
		child = "The child named " + cc.ChildName
	}
	target := cc.Expected
	if target == "" {
		target = cc.StepID
	}
	if cc.WasCorrect {
		tries := ""
		if cc.AttemptCount > 1 {
			tries = fmt.Sprintf(" (took %d tries)", cc.AttemptCount)
		}
		return fmt.Sprintf("%s just correctly pressed the letter for %q while learning %q%s. Give a short encouraging response.",
			child, target, cc.WordOrTitle, tries)
	}
	return fmt.Sprintf("%s pressed the wrong letter while learning %q (step: %q, attempt %d). Give a gentle, encouraging hint to try again.",
		child, cc.WordOrTitle, target, cc.AttemptCount)
}

// Summarize implements [pcoach.Coach].
func (c *LLM) Summarize(ctx context.Context, s pcoach.SessionSummary) (string, error) {
	system := fmt.Sprintf("You are a warm reading tutor for children. Always respond in %s. "+
		"Keep it under 3 sentences. Be encouraging.", languageName(s.Language))
	var b strings.Builder
	b.WriteString("The child")
	if s.ChildName != "" {
		b.WriteString(" named " + s.ChildName)
	}
	fmt.Fprintf(&b, " finished a reading lesson")
	if s.LessonTitle != "" {
		fmt.Fprintf(&b, " called %q", s.LessonTitle)
	}
	fmt.Fprintf(&b, ". They pressed %d key(s) total and got %d correct. Write a short encouraging completion summary.",
		s.TotalAttempts, s.CorrectAttempts)
	return c.complete(ctx, "summarize", s.Language, system, b.String())
}

// ExplainSyllables implements [pcoach.Coach].
func (c *LLM) ExplainSyllables(ctx context.Context, word string, syllables []string, language string) (string, error) {
	system := fmt.Sprintf("You are a warm reading tutor for young children. Always respond in %s. "+
		"Keep responses under 2 sentences. Use simple words.", languageName(language))
	user := fmt.Sprintf("Explain in a child-friendly way how the word %q is broken into syllables: %s. Be brief and fun.",
		word, strings.Join(syllables, " - "))
	return c.complete(ctx, "syllables", language, system, user)
}

// Breaker returns the circuit breaker guarding the provider.
func (c *LLM) Breaker() *resilience.CircuitBreaker { return c.breaker }

func (c *LLM) complete(ctx context.Context, op, language, system, user string) (text string, err error) {
	ctx, span := observe.StartSpan(ctx, "coach "+op, trace.WithAttributes(
		attribute.String("coach.op", op),
		attribute.String("coach.language", language),
		attribute.String("coach.model", c.provider.Model()),
	))
	defer func() {
		observe.RecordError(span, err)
		span.End()
	}()

	err = c.breaker.Execute(func() error {
		resp, err := c.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: system,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
			Temperature:  c.temperature,
			MaxTokens:    c.maxTokens,
		})
		if err != nil {
			return err
		}
		text = strings.TrimSpace(resp.Content)
		if resp.Truncated {
			text = lastSentence(text)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("coach: %w", err)
	}
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// lastSentence cuts text after its final sentence terminator so a reply cut
// off by the token limit is never read aloud mid-word. Text with no complete
// sentence is returned unchanged.
func lastSentence(text string) string {
	if i := strings.LastIndexAny(text, ".!?"); i > 0 {
		return text[:i+1]
	}
	return text
}

// languageName maps a BCP-47 tag to the English name of its language.
// Unknown tags fall back to English.
func languageName(tag string) string {
	base := strings.ToLower(tag)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	switch base {
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "de":
		return "German"
	default:
		return "English"
	}
}
