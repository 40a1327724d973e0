// Package storetest holds a behaviour suite shared by every store.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

// Run exercises s. The store must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("history", func(t *testing.T) {
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		recs := []store.Record{
			{ID: "r1", LessonID: "lesson-cat-en", LessonTitle: "Spell CAT", Language: "en", Completed: base, TotalAttempts: 4, CorrectAttempts: 3, Duration: 42 * time.Second},
			{ID: "r2", LessonID: "lesson-velo-fr", LessonTitle: "Épelle VÉLO", Language: "fr", Completed: base.Add(time.Hour), TotalAttempts: 4, CorrectAttempts: 4, Duration: time.Minute},
		}
		for _, r := range recs {
			if err := s.AppendRecord(ctx, r); err != nil {
				t.Fatalf("AppendRecord: %v", err)
			}
		}
		got, err := s.Records(ctx)
		if err != nil {
			t.Fatalf("Records: %v", err)
		}
		if len(got) != len(recs) {
			t.Fatalf("records = %d, want %d", len(got), len(recs))
		}
		for i := range recs {
			w, g := recs[i], got[i]
			if g.ID != w.ID || g.LessonID != w.LessonID || g.LessonTitle != w.LessonTitle || g.Language != w.Language {
				t.Errorf("record %d = %+v, want %+v", i, g, w)
			}
			if !g.Completed.Equal(w.Completed) || g.Duration != w.Duration {
				t.Errorf("record %d times = %v / %v, want %v / %v", i, g.Completed, g.Duration, w.Completed, w.Duration)
			}
			if g.TotalAttempts != w.TotalAttempts || g.CorrectAttempts != w.CorrectAttempts {
				t.Errorf("record %d attempts = %d/%d", i, g.CorrectAttempts, g.TotalAttempts)
			}
		}

		if err := s.ClearRecords(ctx); err != nil {
			t.Fatalf("ClearRecords: %v", err)
		}
		if got, _ := s.Records(ctx); len(got) != 0 {
			t.Errorf("records after clear = %d", len(got))
		}
	})

	t.Run("lessons", func(t *testing.T) {
		sun, err := lesson.FromWord("sun", "en")
		if err != nil {
			t.Fatal(err)
		}
		ami, err := lesson.FromWord("ami", "fr")
		if err != nil {
			t.Fatal(err)
		}
		for _, l := range []*lesson.Lesson{sun, ami} {
			if err := s.PutLesson(ctx, l); err != nil {
				t.Fatalf("PutLesson(%s): %v", l.ID, err)
			}
		}
		// Replacing keeps a single copy.
		if err := s.PutLesson(ctx, sun); err != nil {
			t.Fatalf("PutLesson again: %v", err)
		}

		got, err := s.GetLesson(ctx, sun.ID)
		if err != nil {
			t.Fatalf("GetLesson: %v", err)
		}
		if got.Title != sun.Title || got.Len() != sun.Len() || got.Step(1).Expected != "s" {
			t.Errorf("lesson = %s %q len %d", got.ID, got.Title, got.Len())
		}

		all, err := s.Lessons(ctx)
		if err != nil {
			t.Fatalf("Lessons: %v", err)
		}
		if len(all) != 2 || all[0].ID != ami.ID || all[1].ID != sun.ID {
			t.Fatalf("lessons = %d, want [%s %s]", len(all), ami.ID, sun.ID)
		}

		if err := s.DeleteLesson(ctx, ami.ID); err != nil {
			t.Fatalf("DeleteLesson: %v", err)
		}
		if _, err := s.GetLesson(ctx, ami.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetLesson deleted = %v, want ErrNotFound", err)
		}
		if err := s.DeleteLesson(ctx, ami.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("DeleteLesson twice = %v, want ErrNotFound", err)
		}
		if _, err := s.GetLesson(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetLesson unknown = %v, want ErrNotFound", err)
		}
	})
}
