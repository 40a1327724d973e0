package lesson

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// phrasebook holds the generated-lesson texts for one language.
type phrasebook struct {
	intro    func(word string, letters int) string
	prompt   func(letter string) string
	success  func(letter string) string
	failure  func(letter string) string
	complete func(word string) string
	title    func(word string) string

	practiceIntro    string
	practicePrompt   func(letter string) string
	practiceComplete string
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}

var phrasebooks = map[string]phrasebook{
	"en": {
		intro: func(word string, n int) string {
			return fmt.Sprintf("Let's spell the word %s! It has %d letter%s.", word, n, plural(n))
		},
		prompt:   func(l string) string { return fmt.Sprintf("Press the letter %s!", l) },
		success:  func(l string) string { return fmt.Sprintf("Great! %s!", l) },
		failure:  func(l string) string { return fmt.Sprintf("Try again! Find the %s.", l) },
		complete: func(word string) string { return fmt.Sprintf("Fantastic! You can spell %s!", word) },
		title:    func(word string) string { return "Spell " + word },

		practiceIntro:    "Time to practice your tricky letters! Let's go!",
		practicePrompt:   func(l string) string { return fmt.Sprintf("Find the letter %s!", l) },
		practiceComplete: "Great work! You are getting better!",
	},
	"fr": {
		intro: func(word string, n int) string {
			return fmt.Sprintf("Épelle le mot %s ! Il a %d lettre%s.", word, n, plural(n))
		},
		prompt:   func(l string) string { return fmt.Sprintf("Appuie sur la lettre %s !", l) },
		success:  func(l string) string { return fmt.Sprintf("Bien ! %s !", l) },
		failure:  func(l string) string { return fmt.Sprintf("Essaie encore ! Cherche le %s.", l) },
		complete: func(word string) string { return fmt.Sprintf("Bravo ! Tu sais écrire %s !", word) },
		title:    func(word string) string { return "Épelle " + word },

		practiceIntro:    "C'est l'heure de réviser les lettres difficiles ! Allons-y !",
		practicePrompt:   func(l string) string { return fmt.Sprintf("Trouve la lettre %s !", l) },
		practiceComplete: "Super travail ! Tu t'améliores !",
	},
}

// phrasesFor returns the phrasebook for lang, falling back to English.
func phrasesFor(lang string) phrasebook {
	if p, ok := phrasebooks[baseLanguage(lang)]; ok {
		return p
	}
	return phrasebooks["en"]
}

// baseLanguage reduces a BCP-47 tag such as "fr-FR" to "fr".
func baseLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

// FromWord generates a spelling lesson for word: an introduction, one prompt
// per letter of the lowercased word in order, and a completion step, linked
// as a strict chain. lang selects the phrasing; unknown languages use
// English texts but keep their tag. Surrounding whitespace is ignored; an
// empty word fails with [ErrInvalidInput].
func FromWord(word, lang string) (*Lesson, error) {
	def, err := wordDefinition(word, lang)
	if err != nil {
		return nil, err
	}
	return New(def)
}

// Build generates a user-authored word lesson. It is [FromWord] with a unique
// id and, when customIntro is non-empty, a custom introduction text.
func Build(word, lang, customIntro string) (*Lesson, error) {
	def, err := wordDefinition(word, lang)
	if err != nil {
		return nil, err
	}
	def.ID = fmt.Sprintf("custom-%s-%s-%s", sanitize(strings.ToLower(strings.TrimSpace(word))), def.Language, uuid.NewString()[:8])
	if intro := strings.TrimSpace(customIntro); intro != "" {
		def.Steps[0].Text = intro
	}
	return New(def)
}

func wordDefinition(word, lang string) (Definition, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return Definition{}, fmt.Errorf("%w: word must not be empty", ErrInvalidInput)
	}
	if lang == "" {
		lang = "en"
	}
	p := phrasesFor(lang)
	lower := strings.ToLower(word)
	upper := strings.ToUpper(word)
	n := utf8.RuneCountInString(lower)

	def := Definition{
		ID:       fmt.Sprintf("auto-%s-%s", lower, lang),
		Language: lang,
		Title:    p.title(upper),
		Steps:    make([]StepDefinition, 0, n+2),
	}
	def.Steps = append(def.Steps, StepDefinition{
		ID:   "intro",
		Kind: KindNarrate,
		Text: p.intro(upper, n),
		Next: "step-0",
	})
	i := 0
	for _, r := range lower {
		letter := string(r)
		shown := strings.ToUpper(letter)
		next := fmt.Sprintf("step-%d", i+1)
		if i == n-1 {
			next = "complete"
		}
		def.Steps = append(def.Steps, StepDefinition{
			ID:          fmt.Sprintf("step-%d", i),
			Kind:        KindPrompt,
			Text:        p.prompt(shown),
			Expected:    letter,
			SuccessText: p.success(shown),
			FailureText: p.failure(shown),
			Next:        next,
		})
		i++
	}
	def.Steps = append(def.Steps, StepDefinition{
		ID:   "complete",
		Kind: KindComplete,
		Text: p.complete(upper),
	})
	return def, nil
}

// Practice builds a review lesson with one prompt per item, in order.
// id must be unique for the caller's storage. An empty item list fails with
// [ErrInvalidInput].
func Practice(items []string, lang, id string) (*Lesson, error) {
	var answers []string
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			answers = append(answers, it)
		}
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: nothing to practice", ErrInvalidInput)
	}
	if lang == "" {
		lang = "en"
	}
	p := phrasesFor(lang)

	def := Definition{
		ID:       id,
		Language: lang,
		Title:    "Practice Weak Spots",
		Steps:    make([]StepDefinition, 0, len(answers)+2),
	}
	def.Steps = append(def.Steps, StepDefinition{
		ID:   "intro",
		Kind: KindNarrate,
		Text: p.practiceIntro,
		Next: "practice-0",
	})
	for i, a := range answers {
		shown := strings.ToUpper(a)
		next := fmt.Sprintf("practice-%d", i+1)
		if i == len(answers)-1 {
			next = CompleteMarker
		}
		def.Steps = append(def.Steps, StepDefinition{
			ID:          fmt.Sprintf("practice-%d", i),
			Kind:        KindPrompt,
			Text:        p.practicePrompt(shown),
			Expected:    a,
			SuccessText: p.success(shown),
			FailureText: p.failure(shown),
			Next:        next,
		})
	}
	def.Steps = append(def.Steps, StepDefinition{
		ID:   "done",
		Kind: KindComplete,
		Text: p.practiceComplete,
	})
	return New(def)
}

var unsafeIDChars = regexp.MustCompile(`[^a-z0-9]+`)

// sanitize reduces s to a lowercase id fragment.
func sanitize(s string) string {
	s = unsafeIDChars.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "word"
	}
	return s
}
