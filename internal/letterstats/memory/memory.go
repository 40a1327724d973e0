// Package memory provides an in-process letterstats.Store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/readalong/internal/letterstats"
)

var _ letterstats.Store = (*Store)(nil)

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	stats map[string]letterstats.Stat
}

// New returns an empty Store.
func New() *Store {
	return &Store{stats: make(map[string]letterstats.Stat)}
}

// Record implements [letterstats.Store].
func (s *Store) Record(_ context.Context, letter string, correct bool, at time.Time) (letterstats.Stat, error) {
	letter = letterstats.Normalize(letter)
	if letter == "" {
		return letterstats.Stat{}, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[letter]
	st.Letter = letter
	st.Total++
	if !correct {
		st.Mistakes++
	}
	st.LastSeen = at
	s.stats[letter] = st
	return st, nil
}

// All implements [letterstats.Store].
func (s *Store) All(_ context.Context) ([]letterstats.Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]letterstats.Stat, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, st)
	}
	return out, nil
}

// Clear implements [letterstats.Store].
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.stats)
	return nil
}
