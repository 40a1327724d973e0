package store_test

import (
	"testing"

	"github.com/MrWong99/readalong/internal/store"
)

func TestRecord_AccuracyAndPerfect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total, correct int
		accuracy       int
		perfect        bool
	}{
		{0, 0, 100, false},
		{4, 4, 100, true},
		{4, 3, 75, false},
		{3, 2, 67, false},
	}
	for _, tt := range tests {
		r := store.Record{TotalAttempts: tt.total, CorrectAttempts: tt.correct}
		if got := r.Accuracy(); got != tt.accuracy {
			t.Errorf("Accuracy(%d/%d) = %d, want %d", tt.correct, tt.total, got, tt.accuracy)
		}
		if got := r.Perfect(); got != tt.perfect {
			t.Errorf("Perfect(%d/%d) = %v, want %v", tt.correct, tt.total, got, tt.perfect)
		}
	}
}
