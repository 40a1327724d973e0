// Package sqlite provides a SQLite-backed [store.Store] for single-machine
// installs. The database is a single file and needs cgo for the driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

var _ store.Store = (*Store)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lesson_history (
        id TEXT PRIMARY KEY,
        lesson_id TEXT NOT NULL,
        lesson_title TEXT NOT NULL DEFAULT '',
        language TEXT NOT NULL DEFAULT '',
        completed_at INTEGER NOT NULL,
        total_attempts INTEGER NOT NULL DEFAULT 0,
        correct_attempts INTEGER NOT NULL DEFAULT 0,
        duration_ns INTEGER NOT NULL DEFAULT 0
    )`,
	`CREATE INDEX IF NOT EXISTS idx_lesson_history_completed_at ON lesson_history (completed_at)`,
	`CREATE TABLE IF NOT EXISTS custom_lessons (
        id TEXT PRIMARY KEY,
        language TEXT NOT NULL DEFAULT '',
        title TEXT NOT NULL DEFAULT '',
        definition TEXT NOT NULL,
        updated_at INTEGER NOT NULL
    )`,
}

// Store is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %q: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite store: migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// AppendRecord implements [store.HistoryStore].
func (s *Store) AppendRecord(ctx context.Context, r store.Record) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO lesson_history
            (id, lesson_id, lesson_title, language, completed_at, total_attempts, correct_attempts, duration_ns)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.LessonID, r.LessonTitle, r.Language,
		r.Completed.UnixNano(), r.TotalAttempts, r.CorrectAttempts, r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: append record: %w", err)
	}
	return nil
}

// Records implements [store.HistoryStore].
func (s *Store) Records(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, lesson_id, lesson_title, language, completed_at, total_attempts, correct_attempts, duration_ns
        FROM lesson_history ORDER BY completed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: records: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var (
			r      store.Record
			at, ns int64
		)
		if err := rows.Scan(&r.ID, &r.LessonID, &r.LessonTitle, &r.Language,
			&at, &r.TotalAttempts, &r.CorrectAttempts, &ns); err != nil {
			return nil, fmt.Errorf("sqlite store: scan record: %w", err)
		}
		r.Completed = time.Unix(0, at).UTC()
		r.Duration = time.Duration(ns)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite store: records: %w", err)
	}
	return out, nil
}

// ClearRecords implements [store.HistoryStore].
func (s *Store) ClearRecords(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM lesson_history`); err != nil {
		return fmt.Errorf("sqlite store: clear records: %w", err)
	}
	return nil
}

// PutLesson implements [store.LessonStore].
func (s *Store) PutLesson(ctx context.Context, l *lesson.Lesson) error {
	data, err := store.EncodeLesson(l)
	if err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO custom_lessons (id, language, title, definition, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            language = excluded.language,
            title = excluded.title,
            definition = excluded.definition,
            updated_at = excluded.updated_at`,
		l.ID, l.Language, l.Title, string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: put lesson: %w", err)
	}
	return nil
}

// GetLesson implements [store.LessonStore].
func (s *Store) GetLesson(ctx context.Context, id string) (*lesson.Lesson, error) {
	var def string
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM custom_lessons WHERE id = ?`, id).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: get lesson: %w", err)
	}
	return store.DecodeLesson([]byte(def))
}

// Lessons implements [store.LessonStore].
func (s *Store) Lessons(ctx context.Context) ([]*lesson.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM custom_lessons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: lessons: %w", err)
	}
	defer rows.Close()

	var out []*lesson.Lesson
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, fmt.Errorf("sqlite store: scan lesson: %w", err)
		}
		l, err := store.DecodeLesson([]byte(def))
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLesson implements [store.LessonStore].
func (s *Store) DeleteLesson(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_lessons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite store: delete lesson: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
