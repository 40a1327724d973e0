package lesson_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/readalong/pkg/lesson"
)

// walk follows next links from the entry step and returns the visited ids.
func walk(t *testing.T, l *lesson.Lesson) []string {
	t.Helper()
	var ids []string
	seen := make(map[int]bool)
	for i := l.Entry(); i >= 0; i = l.Step(i).Next {
		if seen[i] {
			t.Fatalf("cycle at step %q", l.Step(i).ID)
		}
		seen[i] = true
		ids = append(ids, l.Step(i).ID)
	}
	return ids
}

func TestFromWord_Cat(t *testing.T) {
	t.Parallel()

	l, err := lesson.FromWord("cat", "en")
	if err != nil {
		t.Fatalf("FromWord: %v", err)
	}

	got := walk(t, l)
	want := []string{"intro", "step-0", "step-1", "step-2", "complete"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("chain = %v, want %v", got, want)
	}

	expected := []string{"c", "a", "t"}
	for i, e := range expected {
		s := l.Step(i + 1)
		if s.Kind != lesson.KindPrompt {
			t.Errorf("step %d kind = %v, want prompt", i+1, s.Kind)
		}
		if s.Expected != e {
			t.Errorf("step %d expected = %q, want %q", i+1, s.Expected, e)
		}
	}

	if l.Step(0).Text != "Let's spell the word CAT! It has 3 letters." {
		t.Errorf("intro = %q", l.Step(0).Text)
	}
	if l.Step(1).SuccessText != "Great! C!" || l.Step(1).FailureText != "Try again! Find the C." {
		t.Errorf("feedback texts = %q / %q", l.Step(1).SuccessText, l.Step(1).FailureText)
	}
	if c := l.Step(l.CompleteIndex()); c.Kind != lesson.KindComplete || c.Next != -1 {
		t.Errorf("complete step = %+v", c)
	}
	if l.ID != "auto-cat-en" || l.Title != "Spell CAT" {
		t.Errorf("id/title = %q / %q", l.ID, l.Title)
	}
}

func TestFromWord_StepCounts(t *testing.T) {
	t.Parallel()

	words := []string{"a", "go", "Hello", "vélo", "ÉCOLE", "ice cream"}
	for _, w := range words {
		t.Run(w, func(t *testing.T) {
			t.Parallel()
			l, err := lesson.FromWord(w, "fr")
			if err != nil {
				t.Fatalf("FromWord(%q): %v", w, err)
			}
			n := len([]rune(w))
			if got := l.Prompts(); got != n {
				t.Errorf("prompts = %d, want %d", got, n)
			}
			if l.Len() != n+2 {
				t.Errorf("len = %d, want %d", l.Len(), n+2)
			}
			if got := len(walk(t, l)); got != l.Len() {
				t.Errorf("chain visits %d steps, want %d", got, l.Len())
			}
		})
	}
}

func TestFromWord_SingleLetterPlural(t *testing.T) {
	t.Parallel()

	en, _ := lesson.FromWord("a", "en")
	if got := en.Step(0).Text; got != "Let's spell the word A! It has 1 letter." {
		t.Errorf("en intro = %q", got)
	}
	fr, _ := lesson.FromWord("vélo", "fr")
	if got := fr.Step(0).Text; got != "Épelle le mot VÉLO ! Il a 4 lettres." {
		t.Errorf("fr intro = %q", got)
	}
	if fr.Step(2).Expected != "é" {
		t.Errorf("fr step-1 expected = %q, want é", fr.Step(2).Expected)
	}
}

func TestFromWord_EmptyWord(t *testing.T) {
	t.Parallel()

	for _, w := range []string{"", "   "} {
		l, err := lesson.FromWord(w, "en")
		if !errors.Is(err, lesson.ErrInvalidInput) {
			t.Errorf("FromWord(%q) error = %v, want ErrInvalidInput", w, err)
		}
		if l != nil {
			t.Errorf("FromWord(%q) returned a lesson", w)
		}
	}
}

func TestFromWord_UnknownLanguageUsesEnglish(t *testing.T) {
	t.Parallel()

	l, err := lesson.FromWord("sol", "es-ES")
	if err != nil {
		t.Fatalf("FromWord: %v", err)
	}
	if l.Language != "es-ES" {
		t.Errorf("language = %q", l.Language)
	}
	if !strings.HasPrefix(l.Step(1).Text, "Press the letter") {
		t.Errorf("prompt = %q", l.Step(1).Text)
	}
}

func validDefinition() lesson.Definition {
	return lesson.Definition{
		ID:       "d",
		Language: "en",
		Title:    "D",
		Steps: []lesson.StepDefinition{
			{ID: "intro", Kind: lesson.KindNarrate, Text: "hi", Next: "p"},
			{ID: "p", Kind: lesson.KindPrompt, Text: "press B", Expected: "B", Next: "complete"},
			{ID: "end", Kind: lesson.KindComplete, Text: "bye"},
		},
	}
}

func TestNew_ResolvesCompleteMarker(t *testing.T) {
	t.Parallel()

	l, err := lesson.New(validDefinition())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := l.Step(1).Next; got != 2 {
		t.Errorf("prompt next = %d, want 2", got)
	}
	if got := l.Step(1).Expected; got != "b" {
		t.Errorf("expected = %q, want lowercase b", got)
	}
}

func TestNew_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*lesson.Definition)
		want   string
	}{
		{"no steps", func(d *lesson.Definition) { d.Steps = nil }, "no steps"},
		{"empty id", func(d *lesson.Definition) { d.ID = "" }, "lesson id is empty"},
		{"duplicate id", func(d *lesson.Definition) { d.Steps[1].ID = "intro" }, "duplicate"},
		{"no complete", func(d *lesson.Definition) { d.Steps[2].Kind = lesson.KindNarrate; d.Steps[2].Next = "intro" }, "no complete"},
		{"two completes", func(d *lesson.Definition) {
			d.Steps = append(d.Steps, lesson.StepDefinition{ID: "end2", Kind: lesson.KindComplete})
		}, "second complete"},
		{"dangling next", func(d *lesson.Definition) { d.Steps[0].Next = "nowhere" }, "unknown step"},
		{"missing next", func(d *lesson.Definition) { d.Steps[0].Next = "" }, "no next"},
		{"missing expected", func(d *lesson.Definition) { d.Steps[1].Expected = "" }, "no expected"},
		{"unknown kind", func(d *lesson.Definition) { d.Steps[0].Kind = 0 }, "unknown kind"},
		{"cycle", func(d *lesson.Definition) {
			d.Steps[1].Next = "intro"
		}, "never reaches"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			def := validDefinition()
			tt.mutate(&def)
			_, err := lesson.New(def)
			if !errors.Is(err, lesson.ErrMalformedLesson) {
				t.Fatalf("error = %v, want ErrMalformedLesson", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestLesson_IsImmutable(t *testing.T) {
	t.Parallel()

	l, _ := lesson.FromWord("ab", "en")
	steps := l.Steps()
	steps[1].Expected = "z"
	if l.Step(1).Expected != "a" {
		t.Fatal("mutating Steps() result changed the lesson")
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	orig, _ := lesson.FromWord("dog", "en")
	var buf bytes.Buffer
	if err := lesson.Encode(&buf, orig); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := lesson.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("decoded %d lessons, want 1", len(got))
	}
	if strings.Join(walk(t, got[0]), ",") != strings.Join(walk(t, orig), ",") {
		t.Errorf("decoded chain differs")
	}
	if got[0].Step(2).SuccessText != orig.Step(2).SuccessText {
		t.Errorf("success text = %q", got[0].Step(2).SuccessText)
	}
}

func TestDecode_UnknownField(t *testing.T) {
	t.Parallel()

	src := `
id: x
language: en
title: X
colour: red
steps:
  - {id: end, type: complete, text: done}
`
	if _, err := lesson.Decode(strings.NewReader(src)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	t.Parallel()

	src := `
id: x
steps:
  - {id: a, type: sing, text: la, next: end}
  - {id: end, type: complete, text: done}
`
	_, err := lesson.Decode(strings.NewReader(src))
	if err == nil || !strings.Contains(err.Error(), "unknown step kind") {
		t.Fatalf("error = %v, want unknown step kind", err)
	}
}

func TestBuiltin(t *testing.T) {
	t.Parallel()

	c, err := lesson.Builtin()
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	if got := len(c.All()); got != 6 {
		t.Errorf("builtin lessons = %d, want 6", got)
	}
	fr := c.ForLanguage("fr-FR")
	if len(fr) != 3 {
		t.Fatalf("fr lessons = %d, want 3", len(fr))
	}
	velo, ok := c.Get("lesson-velo-fr")
	if !ok {
		t.Fatal("lesson-velo-fr missing")
	}
	if velo.Step(2).Expected != "é" {
		t.Errorf("velo step 2 expected = %q", velo.Step(2).Expected)
	}
	if got := walk(t, velo); got[len(got)-1] != "complete" {
		t.Errorf("velo chain ends at %q", got[len(got)-1])
	}
}

func TestBuild_CustomIntro(t *testing.T) {
	t.Parallel()

	l, err := lesson.Build("Sun!", "en", "  Look at the sky!  ")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(l.ID, "custom-sun-en-") {
		t.Errorf("id = %q", l.ID)
	}
	if l.Step(0).Text != "Look at the sky!" {
		t.Errorf("intro = %q", l.Step(0).Text)
	}
	other, _ := lesson.Build("Sun!", "en", "")
	if other.ID == l.ID {
		t.Error("two builds share an id")
	}
	if other.Step(0).Text != "Let's spell the word SUN!! It has 4 letters." {
		t.Errorf("default intro = %q", other.Step(0).Text)
	}
}

func TestPractice(t *testing.T) {
	t.Parallel()

	l, err := lesson.Practice([]string{"B", " ", "d"}, "fr", "practice-1")
	if err != nil {
		t.Fatalf("Practice: %v", err)
	}
	if l.Prompts() != 2 {
		t.Fatalf("prompts = %d, want 2", l.Prompts())
	}
	if l.Step(0).Text != "C'est l'heure de réviser les lettres difficiles ! Allons-y !" {
		t.Errorf("intro = %q", l.Step(0).Text)
	}
	if l.Title != "Practice Weak Spots" {
		t.Errorf("title = %q", l.Title)
	}

	if _, err := lesson.Practice(nil, "en", "p"); !errors.Is(err, lesson.ErrInvalidInput) {
		t.Errorf("empty practice error = %v, want ErrInvalidInput", err)
	}
}

func TestKind_Text(t *testing.T) {
	t.Parallel()

	for _, k := range []lesson.Kind{lesson.KindNarrate, lesson.KindPrompt, lesson.KindComplete} {
		text, err := k.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", k, err)
		}
		var back lesson.Kind
		if err := back.UnmarshalText(text); err != nil || back != k {
			t.Errorf("round trip %v -> %q -> %v (%v)", k, text, back, err)
		}
	}
}

func TestWordBank(t *testing.T) {
	t.Parallel()

	fr := lesson.WordBank("fr-CA")
	if len(fr) != 23 || fr[0] != "chat" {
		t.Errorf("fr bank = %d words starting %q", len(fr), fr[0])
	}
	de := lesson.WordBank("de")
	if len(de) != 24 || de[0] != "cat" {
		t.Errorf("unknown language bank = %d words starting %q", len(de), de[0])
	}
	de[0] = "x"
	if lesson.WordBank("en")[0] != "cat" {
		t.Error("WordBank returned shared storage")
	}
}
