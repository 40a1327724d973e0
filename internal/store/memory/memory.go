// Package memory provides an in-process [store.Store]. Nothing survives a
// restart.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

var _ store.Store = (*Store)(nil)

// Store keeps records and lessons in memory. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records []store.Record
	lessons map[string]*lesson.Lesson
}

// New returns an empty Store.
func New() *Store {
	return &Store{lessons: make(map[string]*lesson.Lesson)}
}

// AppendRecord implements [store.HistoryStore].
func (s *Store) AppendRecord(_ context.Context, r store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

// Records implements [store.HistoryStore].
func (s *Store) Records(_ context.Context) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records), nil
}

// ClearRecords implements [store.HistoryStore].
func (s *Store) ClearRecords(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// PutLesson implements [store.LessonStore]. Lessons are immutable, so the
// pointer is stored as is.
func (s *Store) PutLesson(_ context.Context, l *lesson.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lessons[l.ID] = l
	return nil
}

// GetLesson implements [store.LessonStore].
func (s *Store) GetLesson(_ context.Context, id string) (*lesson.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lessons[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return l, nil
}

// Lessons implements [store.LessonStore].
func (s *Store) Lessons(_ context.Context) ([]*lesson.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*lesson.Lesson, 0, len(s.lessons))
	for _, id := range slices.Sorted(maps.Keys(s.lessons)) {
		out = append(out, s.lessons[id])
	}
	return out, nil
}

// DeleteLesson implements [store.LessonStore].
func (s *Store) DeleteLesson(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lessons[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.lessons, id)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
