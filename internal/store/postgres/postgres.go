// Package postgres provides a PostgreSQL-backed [store.Store] using a pgx
// connection pool. Lessons are stored as their YAML definition in a TEXT
// column, so the schema does not follow the step model.
//
//	s, err := postgres.New(ctx, "postgres://readalong@localhost/readalong")
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

var _ store.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS lesson_history (
    id               TEXT         PRIMARY KEY,
    lesson_id        TEXT         NOT NULL,
    lesson_title     TEXT         NOT NULL DEFAULT '',
    language         TEXT         NOT NULL DEFAULT '',
    completed_at     TIMESTAMPTZ  NOT NULL,
    total_attempts   INTEGER      NOT NULL DEFAULT 0,
    correct_attempts INTEGER      NOT NULL DEFAULT 0,
    duration_ns      BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_lesson_history_completed_at
    ON lesson_history (completed_at);

CREATE TABLE IF NOT EXISTS custom_lessons (
    id          TEXT         PRIMARY KEY,
    language    TEXT         NOT NULL DEFAULT '',
    title       TEXT         NOT NULL DEFAULT '',
    definition  TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Store is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings the server and creates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres store: migrate: %w", err)
	}
	return nil
}

// AppendRecord implements [store.HistoryStore].
func (s *Store) AppendRecord(ctx context.Context, r store.Record) error {
	const q = `
		INSERT INTO lesson_history
		    (id, lesson_id, lesson_title, language, completed_at, total_attempts, correct_attempts, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		r.ID, r.LessonID, r.LessonTitle, r.Language,
		r.Completed, r.TotalAttempts, r.CorrectAttempts, r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres store: append record: %w", err)
	}
	return nil
}

// Records implements [store.HistoryStore].
func (s *Store) Records(ctx context.Context) ([]store.Record, error) {
	const q = `
		SELECT id, lesson_id, lesson_title, language, completed_at, total_attempts, correct_attempts, duration_ns
		FROM   lesson_history
		ORDER  BY completed_at, id`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: records: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Record, error) {
		var (
			r  store.Record
			ns int64
		)
		err := row.Scan(&r.ID, &r.LessonID, &r.LessonTitle, &r.Language,
			&r.Completed, &r.TotalAttempts, &r.CorrectAttempts, &ns)
		r.Duration = time.Duration(ns)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan records: %w", err)
	}
	return out, nil
}

// ClearRecords implements [store.HistoryStore].
func (s *Store) ClearRecords(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM lesson_history`); err != nil {
		return fmt.Errorf("postgres store: clear records: %w", err)
	}
	return nil
}

// PutLesson implements [store.LessonStore].
func (s *Store) PutLesson(ctx context.Context, l *lesson.Lesson) error {
	data, err := store.EncodeLesson(l)
	if err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	const q = `
		INSERT INTO custom_lessons (id, language, title, definition, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET language = EXCLUDED.language,
		    title = EXCLUDED.title,
		    definition = EXCLUDED.definition,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, l.ID, l.Language, l.Title, string(data)); err != nil {
		return fmt.Errorf("postgres store: put lesson: %w", err)
	}
	return nil
}

// GetLesson implements [store.LessonStore].
func (s *Store) GetLesson(ctx context.Context, id string) (*lesson.Lesson, error) {
	var def string
	err := s.pool.QueryRow(ctx, `SELECT definition FROM custom_lessons WHERE id = $1`, id).Scan(&def)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get lesson: %w", err)
	}
	return store.DecodeLesson([]byte(def))
}

// Lessons implements [store.LessonStore].
func (s *Store) Lessons(ctx context.Context) ([]*lesson.Lesson, error) {
	rows, err := s.pool.Query(ctx, `SELECT definition FROM custom_lessons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: lessons: %w", err)
	}
	defs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan lessons: %w", err)
	}
	out := make([]*lesson.Lesson, 0, len(defs))
	for _, d := range defs {
		l, err := store.DecodeLesson([]byte(d))
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}

// DeleteLesson implements [store.LessonStore].
func (s *Store) DeleteLesson(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM custom_lessons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres store: delete lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
