// Package events publishes lesson lifecycle events so other services (a
// parent dashboard, analytics) can follow along without polling.
package events

import (
	"context"
	"time"
)

// Kind names an event type. It is also the last token of the NATS subject.
type Kind string

const (
	LessonStarted   Kind = "lesson.started"
	LessonCompleted Kind = "lesson.completed"
	LessonCancelled Kind = "lesson.cancelled"
)

// Event is the JSON payload of every message.
type Event struct {
	Kind            Kind      `json:"kind"`
	Time            time.Time `json:"time"`
	LessonID        string    `json:"lesson_id"`
	LessonTitle     string    `json:"lesson_title,omitempty"`
	Language        string    `json:"language,omitempty"`
	ChildName       string    `json:"child_name,omitempty"`
	TotalAttempts   int       `json:"total_attempts,omitempty"`
	CorrectAttempts int       `json:"correct_attempts,omitempty"`
	DurationMS      int64     `json:"duration_ms,omitempty"`
	Stars           int       `json:"stars,omitempty"`
}

// Publisher delivers events. Publish must not block the caller for long;
// implementations buffer or drop rather than stall a lesson.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements [Publisher].
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements [Publisher].
func (Nop) Close() error { return nil }
