package session

import (
	"slices"
	"sync"
	"time"
)

// Entry is one logged attempt.
type Entry struct {
	StepID  string    `json:"step_id"`
	Input   string    `json:"input"`
	Correct bool      `json:"correct"`
	Attempt int       `json:"attempt"`
	Time    time.Time `json:"time"`
}

// Report summarises a lesson run.
type Report struct {
	Started         time.Time     `json:"started"`
	Duration        time.Duration `json:"duration"`
	TotalAttempts   int           `json:"total_attempts"`
	CorrectAttempts int           `json:"correct_attempts"`
	Entries         []Entry       `json:"entries"`
}

// Accuracy returns the share of correct attempts as a percentage. A report
// without attempts is 100% accurate.
func (r Report) Accuracy() float64 {
	if r.TotalAttempts == 0 {
		return 100
	}
	return float64(r.CorrectAttempts) * 100 / float64(r.TotalAttempts)
}

// Logger is an append-only attempt log for one lesson run. It is safe for
// concurrent use.
type Logger struct {
	clock func() time.Time

	mu       sync.Mutex
	started  time.Time
	finished time.Time
	entries  []Entry
}

// NewLogger returns a Logger whose start time is clock(). A nil clock uses
// time.Now.
func NewLogger(clock func() time.Time) *Logger {
	if clock == nil {
		clock = time.Now
	}
	return &Logger{clock: clock, started: clock()}
}

// Log appends one attempt.
func (l *Logger) Log(stepID, input string, correct bool, attempt int) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		StepID:  stepID,
		Input:   input,
		Correct: correct,
		Attempt: attempt,
		Time:    now,
	})
}

// Finish fixes the end of the run at clock(). Later calls are ignored.
func (l *Logger) Finish() {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished.IsZero() {
		l.finished = now
	}
}

// Report projects the current log. Until [Logger.Finish] is called the
// duration runs from the start to the latest entry, so two calls without an
// intervening Log return equal reports.
func (l *Logger) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Report{
		Started:       l.started,
		TotalAttempts: len(l.entries),
		Entries:       slices.Clone(l.entries),
	}
	for _, e := range l.entries {
		if e.Correct {
			r.CorrectAttempts++
		}
	}
	end := l.finished
	if end.IsZero() && len(l.entries) > 0 {
		end = l.entries[len(l.entries)-1].Time
	}
	if !end.IsZero() {
		r.Duration = end.Sub(l.started)
	}
	return r
}
