// Package store defines persistence for lesson history and custom lessons.
//
// Four backends implement [Store]: memory (tests, ephemeral runs), file
// (JSON lines history plus a YAML lesson directory), postgres (pgx) and
// sqlite. Every implementation must be safe for concurrent use.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/readalong/pkg/lesson"
)

// ErrNotFound is returned when a lesson id is unknown.
var ErrNotFound = errors.New("store: not found")

// Record is one completed lesson.
type Record struct {
	ID              string        `json:"id"`
	LessonID        string        `json:"lesson_id"`
	LessonTitle     string        `json:"lesson_title"`
	Language        string        `json:"language"`
	Completed       time.Time     `json:"completed"`
	TotalAttempts   int           `json:"total_attempts"`
	CorrectAttempts int           `json:"correct_attempts"`
	Duration        time.Duration `json:"duration_ns"`
}

// Perfect reports whether every attempt was correct, with at least one
// attempt made.
func (r Record) Perfect() bool {
	return r.TotalAttempts > 0 && r.CorrectAttempts == r.TotalAttempts
}

// Accuracy returns the correct share of attempts in percent, or 100 when no
// attempt was made.
func (r Record) Accuracy() int {
	if r.TotalAttempts == 0 {
		return 100
	}
	return (r.CorrectAttempts*100 + r.TotalAttempts/2) / r.TotalAttempts
}

// HistoryStore keeps completed lesson records.
type HistoryStore interface {
	// AppendRecord stores r.
	AppendRecord(ctx context.Context, r Record) error

	// Records returns all records, oldest first.
	Records(ctx context.Context) ([]Record, error)

	// ClearRecords removes all records.
	ClearRecords(ctx context.Context) error
}

// LessonStore keeps lessons authored at runtime.
type LessonStore interface {
	// PutLesson stores l, replacing a lesson with the same id.
	PutLesson(ctx context.Context, l *lesson.Lesson) error

	// GetLesson returns the lesson with the given id or [ErrNotFound].
	GetLesson(ctx context.Context, id string) (*lesson.Lesson, error)

	// Lessons returns every stored lesson ordered by id.
	Lessons(ctx context.Context) ([]*lesson.Lesson, error)

	// DeleteLesson removes a lesson. Unknown ids return [ErrNotFound].
	DeleteLesson(ctx context.Context, id string) error
}

// Store combines both stores with a way to release resources.
type Store interface {
	HistoryStore
	LessonStore
	Close() error
}

// EncodeLesson returns the YAML form of l, used by backends that store
// lessons as text.
func EncodeLesson(l *lesson.Lesson) ([]byte, error) {
	var buf bytes.Buffer
	if err := lesson.Encode(&buf, l); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeLesson parses a single lesson produced by [EncodeLesson].
func DecodeLesson(data []byte) (*lesson.Lesson, error) {
	lessons, err := lesson.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(lessons) != 1 {
		return nil, fmt.Errorf("store: expected one lesson, got %d", len(lessons))
	}
	return lessons[0], nil
}
