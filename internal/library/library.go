// Package library merges the lessons a tutor can play: the built-in
// catalogue, lesson files dropped into a watched directory, and lessons
// authored at runtime and kept in a [store.LessonStore].
//
// Lookups go built-in first, then directory, then stored, so a stray file
// can never shadow a shipped lesson. Only stored lessons can be replaced or
// deleted.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

// ErrReadOnly is returned when a built-in or directory lesson would be
// replaced or deleted.
var ErrReadOnly = errors.New("library: lesson is read-only")

// Source says where a lesson came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourceDir     Source = "dir"
	SourceCustom  Source = "custom"
)

// Entry describes one lesson in a listing.
type Entry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Language string `json:"language"`
	Prompts  int    `json:"prompts"`
	Source   Source `json:"source"`
}

func entryOf(l *lesson.Lesson, src Source) Entry {
	return Entry{ID: l.ID, Title: l.Title, Language: l.Language, Prompts: l.Prompts(), Source: src}
}

// Library is safe for concurrent use.
type Library struct {
	builtin *lesson.Catalog
	custom  store.LessonStore

	mu    sync.RWMutex
	dir   string
	files map[string]*lesson.Lesson
}

// New returns a Library over builtin and custom. Either may be nil.
func New(builtin *lesson.Catalog, custom store.LessonStore) *Library {
	if builtin == nil {
		builtin, _ = lesson.NewCatalog()
	}
	return &Library{builtin: builtin, custom: custom, files: map[string]*lesson.Lesson{}}
}

// Get returns the lesson with the given id or [store.ErrNotFound].
func (lib *Library) Get(ctx context.Context, id string) (*lesson.Lesson, error) {
	if l, ok := lib.builtin.Get(id); ok {
		return l, nil
	}
	lib.mu.RLock()
	l, ok := lib.files[id]
	lib.mu.RUnlock()
	if ok {
		return l, nil
	}
	if lib.custom == nil {
		return nil, fmt.Errorf("library: lesson %q: %w", id, store.ErrNotFound)
	}
	l, err := lib.custom.GetLesson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("library: lesson %q: %w", id, err)
	}
	return l, nil
}

// List returns every lesson for lang (base tag match; "" lists all):
// built-in lessons in catalogue order, then directory and stored lessons
// ordered by id.
func (lib *Library) List(ctx context.Context, lang string) ([]Entry, error) {
	match := func(l *lesson.Lesson) bool {
		return lang == "" || baseLanguage(l.Language) == baseLanguage(lang)
	}

	var out []Entry
	for _, l := range lib.builtin.All() {
		if match(l) {
			out = append(out, entryOf(l, SourceBuiltin))
		}
	}

	lib.mu.RLock()
	var dir []Entry
	for _, l := range lib.files {
		if match(l) {
			dir = append(dir, entryOf(l, SourceDir))
		}
	}
	lib.mu.RUnlock()
	slices.SortFunc(dir, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	out = append(out, dir...)

	if lib.custom != nil {
		stored, err := lib.custom.Lessons(ctx)
		if err != nil {
			return nil, fmt.Errorf("library: list stored lessons: %w", err)
		}
		for _, l := range stored {
			if match(l) && !lib.shadowed(l.ID) {
				out = append(out, entryOf(l, SourceCustom))
			}
		}
	}
	return out, nil
}

func (lib *Library) shadowed(id string) bool {
	if _, ok := lib.builtin.Get(id); ok {
		return true
	}
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	_, ok := lib.files[id]
	return ok
}

// Save stores l as a custom lesson. Ids taken by built-in or directory
// lessons are rejected with [ErrReadOnly].
func (lib *Library) Save(ctx context.Context, l *lesson.Lesson) error {
	if lib.custom == nil {
		return fmt.Errorf("library: save %q: no lesson store configured", l.ID)
	}
	if lib.shadowed(l.ID) {
		return fmt.Errorf("library: save %q: %w", l.ID, ErrReadOnly)
	}
	if err := lib.custom.PutLesson(ctx, l); err != nil {
		return fmt.Errorf("library: save %q: %w", l.ID, err)
	}
	return nil
}

// Delete removes a custom lesson.
func (lib *Library) Delete(ctx context.Context, id string) error {
	if lib.shadowed(id) {
		return fmt.Errorf("library: delete %q: %w", id, ErrReadOnly)
	}
	if lib.custom == nil {
		return fmt.Errorf("library: delete %q: %w", id, store.ErrNotFound)
	}
	if err := lib.custom.DeleteLesson(ctx, id); err != nil {
		return fmt.Errorf("library: delete %q: %w", id, err)
	}
	return nil
}

// LoadDir replaces the directory lessons with the *.yaml and *.yml files in
// dir. Files that fail to parse are logged and skipped, as are lessons whose
// id is already taken by a built-in lesson or an earlier file. It returns
// the number of lessons loaded.
func (lib *Library) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("library: read dir %q: %w", dir, err)
	}

	files := map[string]*lesson.Lesson{}
	for _, e := range entries {
		if e.IsDir() || !isLessonFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		lessons, err := lesson.LoadFile(path)
		if err != nil {
			slog.Warn("library: skipping lesson file", "path", path, "err", err)
			continue
		}
		for _, l := range lessons {
			if _, ok := lib.builtin.Get(l.ID); ok {
				slog.Warn("library: lesson id shadows a built-in lesson", "path", path, "id", l.ID)
				continue
			}
			if _, dup := files[l.ID]; dup {
				slog.Warn("library: duplicate lesson id", "path", path, "id", l.ID)
				continue
			}
			files[l.ID] = l
		}
	}

	lib.mu.Lock()
	lib.dir = dir
	lib.files = files
	lib.mu.Unlock()
	return len(files), nil
}

// Dir returns the directory last passed to LoadDir.
func (lib *Library) Dir() string {
	lib.mu.RLock()
	defer lib.mu.RUnlock()
	return lib.dir
}

func isLessonFile(name string) bool {
	name = filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

func baseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return strings.ToLower(tag)
}
