package lesson

import (
	"errors"
	"fmt"
	"strings"
)

// Definition is the authoring form of a lesson, as written in lesson files
// or stored by a lesson builder. Steps refer to each other by id.
type Definition struct {
	ID       string           `yaml:"id" json:"id"`
	Language string           `yaml:"language" json:"language"`
	Title    string           `yaml:"title" json:"title"`
	Steps    []StepDefinition `yaml:"steps" json:"steps"`
}

// StepDefinition is the authoring form of a [Step].
type StepDefinition struct {
	ID          string `yaml:"id" json:"id"`
	Kind        Kind   `yaml:"type" json:"type"`
	Text        string `yaml:"text" json:"text"`
	Expected    string `yaml:"expected,omitempty" json:"expected,omitempty"`
	SuccessText string `yaml:"success,omitempty" json:"success,omitempty"`
	FailureText string `yaml:"failure,omitempty" json:"failure,omitempty"`

	// Next is the id of the following step, or [CompleteMarker]. Ignored on
	// the complete step.
	Next string `yaml:"next,omitempty" json:"next,omitempty"`
}

// New validates def and returns the resolved lesson. All invariant
// violations are reported together; each wraps [ErrMalformedLesson].
func New(def Definition) (*Lesson, error) {
	var errs []error
	malformed := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrMalformedLesson}, args...)...))
	}

	if strings.TrimSpace(def.ID) == "" {
		malformed("lesson id is empty")
	}
	if len(def.Steps) == 0 {
		malformed("lesson has no steps")
		return nil, fmt.Errorf("lesson %q: %w", def.ID, errors.Join(errs...))
	}

	index := make(map[string]int, len(def.Steps))
	complete := -1
	for i, sd := range def.Steps {
		if sd.ID == "" {
			malformed("step %d has an empty id", i)
		} else if _, dup := index[sd.ID]; dup {
			malformed("duplicate step id %q", sd.ID)
		} else {
			index[sd.ID] = i
		}

		switch sd.Kind {
		case KindComplete:
			if complete >= 0 {
				malformed("step %q is a second complete step", sd.ID)
				continue
			}
			complete = i
		case KindPrompt:
			if sd.Expected == "" {
				malformed("prompt step %q has no expected answer", sd.ID)
			}
		case KindNarrate:
		default:
			malformed("step %q has unknown kind %d", sd.ID, int(sd.Kind))
		}
	}
	if complete < 0 {
		malformed("lesson has no complete step")
	}

	steps := make([]Step, len(def.Steps))
	for i, sd := range def.Steps {
		st := Step{
			ID:          sd.ID,
			Kind:        sd.Kind,
			Text:        sd.Text,
			SuccessText: sd.SuccessText,
			FailureText: sd.FailureText,
			Next:        -1,
		}
		if sd.Kind == KindPrompt {
			st.Expected = strings.ToLower(sd.Expected)
		}
		if sd.Kind != KindComplete {
			switch pos, ok := index[sd.Next]; {
			case sd.Next == "":
				malformed("step %q has no next step", sd.ID)
			case ok:
				st.Next = pos
			case sd.Next == CompleteMarker && complete >= 0:
				st.Next = complete
			default:
				malformed("step %q links to unknown step %q", sd.ID, sd.Next)
			}
		}
		steps[i] = st
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("lesson %q: %w", def.ID, errors.Join(errs...))
	}

	if err := checkTermination(steps, complete); err != nil {
		return nil, fmt.Errorf("lesson %q: %w", def.ID, err)
	}

	return &Lesson{
		ID:       def.ID,
		Language: def.Language,
		Title:    def.Title,
		steps:    steps,
		complete: complete,
	}, nil
}

// checkTermination verifies that following next links from every step ends
// at the complete step. Each step has a single successor, so a walk that
// does not reach complete within len(steps) hops is in a cycle.
func checkTermination(steps []Step, complete int) error {
	const (
		unknown = iota
		reaches
		loops
	)
	state := make([]int, len(steps))
	state[complete] = reaches

	var errs []error
	for start := range steps {
		if state[start] != unknown {
			continue
		}
		var path []int
		onPath := make(map[int]bool)
		cur := start
		result := loops
		for {
			if state[cur] != unknown {
				result = state[cur]
				break
			}
			if onPath[cur] {
				break
			}
			onPath[cur] = true
			path = append(path, cur)
			cur = steps[cur].Next
		}
		for _, i := range path {
			state[i] = result
		}
		if result == loops {
			errs = append(errs, fmt.Errorf("%w: step %q never reaches the complete step", ErrMalformedLesson, steps[start].ID))
		}
	}
	return errors.Join(errs...)
}
