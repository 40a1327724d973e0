package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/internal/store/sqlite"
	"github.com/MrWong99/readalong/internal/store/storetest"
)

func TestStore(t *testing.T) {
	s, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	storetest.Run(t, s)
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "readalong.db")

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.AppendRecord(ctx, store.Record{ID: "r1", LessonID: "lesson-cat-en"}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Records(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("records after reopen = %v, %v", got, err)
	}
}
