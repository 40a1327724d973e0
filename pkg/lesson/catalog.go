package lesson

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"sync"
)

//go:embed catalog/*.yaml
var builtinFS embed.FS

// Catalog is a read-only set of lessons indexed by id. It is safe for
// concurrent use.
type Catalog struct {
	byID  map[string]*Lesson
	order []string
}

// NewCatalog returns a catalogue of the given lessons. Lessons with a
// duplicate id are rejected.
func NewCatalog(lessons ...*Lesson) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Lesson, len(lessons))}
	for _, l := range lessons {
		if _, dup := c.byID[l.ID]; dup {
			return nil, fmt.Errorf("lesson: catalog: duplicate lesson id %q", l.ID)
		}
		c.byID[l.ID] = l
		c.order = append(c.order, l.ID)
	}
	return c, nil
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
	builtinErr  error
)

// Builtin returns the lessons shipped with the binary (English and French).
func Builtin() (*Catalog, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = loadFS(builtinFS, "catalog/*.yaml")
	})
	return builtin, builtinErr
}

func loadFS(fsys fs.FS, pattern string) (*Catalog, error) {
	names, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("lesson: glob %q: %w", pattern, err)
	}
	slices.Sort(names)

	var all []*Lesson
	for _, name := range names {
		f, err := fsys.Open(name)
		if err != nil {
			return nil, fmt.Errorf("lesson: open %q: %w", name, err)
		}
		lessons, err := Decode(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("lesson: %s: %w", name, err)
		}
		all = append(all, lessons...)
	}
	return NewCatalog(all...)
}

// Get returns the lesson with the given id.
func (c *Catalog) Get(id string) (*Lesson, bool) {
	l, ok := c.byID[id]
	return l, ok
}

// All returns every lesson in load order.
func (c *Catalog) All() []*Lesson {
	out := make([]*Lesson, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// ForLanguage returns the lessons whose language matches lang (compared on
// the base tag, so "fr-FR" matches "fr").
func (c *Catalog) ForLanguage(lang string) []*Lesson {
	want := baseLanguage(lang)
	var out []*Lesson
	for _, id := range c.order {
		if l := c.byID[id]; baseLanguage(l.Language) == want {
			out = append(out, l)
		}
	}
	return out
}
