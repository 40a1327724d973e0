// Package file provides a [store.Store] on the local filesystem. History is
// an append-only JSON lines file; each lesson is a YAML file in a lessons
// directory, so the lesson watcher and the CLI can read them too.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

var _ store.Store = (*Store)(nil)

const (
	historyFile = "history.jsonl"
	lessonsDir  = "lessons"
	lessonExt   = ".yaml"
)

// Store persists under a root directory. It is safe for concurrent use
// within one process.
type Store struct {
	mu   sync.Mutex
	root string
}

// New creates the directory layout under root if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("file store: root must not be empty")
	}
	if err := os.MkdirAll(filepath.Join(root, lessonsDir), 0o755); err != nil {
		return nil, fmt.Errorf("file store: create %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

// LessonDir returns the directory holding lesson files.
func (s *Store) LessonDir() string { return filepath.Join(s.root, lessonsDir) }

// AppendRecord implements [store.HistoryStore].
func (s *Store) AppendRecord(_ context.Context, r store.Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("file store: marshal record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(s.root, historyFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("file store: open history: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("file store: write history: %w", err)
	}
	return nil
}

// Records implements [store.HistoryStore]. Lines that fail to parse are
// skipped so a torn final write does not lose the rest of the history.
func (s *Store) Records(_ context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(filepath.Join(s.root, historyFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: open history: %w", err)
	}
	defer f.Close()

	var out []store.Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r store.Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("file store: read history: %w", err)
	}
	return out, nil
}

// ClearRecords implements [store.HistoryStore].
func (s *Store) ClearRecords(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(filepath.Join(s.root, historyFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file store: clear history: %w", err)
	}
	return nil
}

func (s *Store) lessonPath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("file store: invalid lesson id %q", id)
	}
	return filepath.Join(s.root, lessonsDir, id+lessonExt), nil
}

// PutLesson implements [store.LessonStore]. The file is written next to its
// destination and renamed into place.
func (s *Store) PutLesson(_ context.Context, l *lesson.Lesson) error {
	path, err := s.lessonPath(l.ID)
	if err != nil {
		return err
	}
	data, err := store.EncodeLesson(l)
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file store: write lesson: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("file store: write lesson: %w", err)
	}
	return nil
}

// GetLesson implements [store.LessonStore].
func (s *Store) GetLesson(_ context.Context, id string) (*lesson.Lesson, error) {
	path, err := s.lessonPath(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read lesson: %w", err)
	}
	return store.DecodeLesson(data)
}

// Lessons implements [store.LessonStore]. Files that do not hold a valid
// lesson are skipped.
func (s *Store) Lessons(_ context.Context) ([]*lesson.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(s.LessonDir())
	if err != nil {
		return nil, fmt.Errorf("file store: list lessons: %w", err)
	}
	var out []*lesson.Lesson
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != lessonExt {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.LessonDir(), e.Name()))
		if err != nil {
			continue
		}
		l, err := store.DecodeLesson(data)
		if err != nil {
			continue
		}
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b *lesson.Lesson) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// DeleteLesson implements [store.LessonStore].
func (s *Store) DeleteLesson(_ context.Context, id string) error {
	path, err := s.lessonPath(id)
	if err != nil {
		return store.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("file store: delete lesson: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
