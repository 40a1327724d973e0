// Package letterstatstest holds a behaviour suite shared by every
// letterstats.Store backend.
package letterstatstest

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/letterstats"
)

// Run exercises s. The store must be empty.
func Run(t *testing.T, s letterstats.Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	attempts := []struct {
		letter  string
		correct bool
	}{
		{"B", false}, {"b", false}, {" b ", true}, {"a", true}, {"", false},
	}
	var last letterstats.Stat
	for _, a := range attempts {
		st, err := s.Record(ctx, a.letter, a.correct, at)
		if err != nil {
			t.Fatalf("Record(%q): %v", a.letter, err)
		}
		if st.Letter == "b" {
			last = st
		}
	}
	if last.Total != 3 || last.Mistakes != 2 {
		t.Errorf("b after three attempts = %+v", last)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	byLetter := make(map[string]letterstats.Stat)
	for _, st := range all {
		byLetter[st.Letter] = st
	}
	if len(byLetter) != 2 {
		t.Fatalf("letters = %v, want a and b", all)
	}
	if b := byLetter["b"]; b.Total != 3 || b.Mistakes != 2 || !b.LastSeen.Equal(at) {
		t.Errorf("b = %+v", b)
	}
	if a := byLetter["a"]; a.Total != 1 || a.Mistakes != 0 {
		t.Errorf("a = %+v", a)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if all, _ := s.All(ctx); len(all) != 0 {
		t.Errorf("after clear = %v", all)
	}
}
