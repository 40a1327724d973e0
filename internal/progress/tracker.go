// Package progress turns finished lessons into rewards (stars and daily
// streaks) and per-letter statistics into practice lessons.
package progress

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/readalong/internal/session"
	"github.com/MrWong99/readalong/internal/store"
	"github.com/MrWong99/readalong/pkg/lesson"
)

// RecentLimit is the number of records in [Summary.Recent].
const RecentLimit = 10

// Option configures a [Tracker] or [Repetition].
type Option func(*options)

type options struct {
	now func() time.Time
	loc *time.Location
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocation sets the time zone that decides which calendar day a lesson
// belongs to. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, loc: time.Local}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Summary is the progress overview shown to the child and the parent.
type Summary struct {
	Stars     int            `json:"stars"`
	Streak    int            `json:"streak"`
	Completed int            `json:"completed"`
	Recent    []store.Record `json:"recent"`
}

// Tracker persists finished lessons and derives rewards from them. It is
// safe for concurrent use when its store is.
type Tracker struct {
	store store.HistoryStore
	opts  options
}

// NewTracker returns a Tracker over s.
func NewTracker(s store.HistoryStore, opts ...Option) *Tracker {
	return &Tracker{store: s, opts: newOptions(opts)}
}

// Save stores r, assigning an id and completion time when they are unset.
func (t *Tracker) Save(ctx context.Context, r store.Record) (store.Record, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Completed.IsZero() {
		r.Completed = t.opts.now()
	}
	if err := t.store.AppendRecord(ctx, r); err != nil {
		return store.Record{}, fmt.Errorf("progress: save: %w", err)
	}
	return r, nil
}

// SaveReport stores the outcome of a finished session of l.
func (t *Tracker) SaveReport(ctx context.Context, l *lesson.Lesson, rep session.Report) (store.Record, error) {
	return t.Save(ctx, store.Record{
		LessonID:        l.ID,
		LessonTitle:     l.Title,
		Language:        l.Language,
		TotalAttempts:   rep.TotalAttempts,
		CorrectAttempts: rep.CorrectAttempts,
		Duration:        rep.Duration,
	})
}

// History returns all records, oldest first.
func (t *Tracker) History(ctx context.Context) ([]store.Record, error) {
	recs, err := t.store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress: history: %w", err)
	}
	return recs, nil
}

// Stars returns one star per completed lesson plus a bonus star for each
// perfect one.
func (t *Tracker) Stars(ctx context.Context) (int, error) {
	recs, err := t.History(ctx)
	if err != nil {
		return 0, err
	}
	return stars(recs), nil
}

func stars(recs []store.Record) int {
	n := 0
	for _, r := range recs {
		n++
		if r.Perfect() {
			n++
		}
	}
	return n
}

// Streak returns the number of consecutive calendar days with a completed
// lesson, ending today or yesterday relative to now. A gap resets it to 0.
func (t *Tracker) Streak(ctx context.Context, now time.Time) (int, error) {
	recs, err := t.History(ctx)
	if err != nil {
		return 0, err
	}
	return streak(recs, now, t.opts.loc), nil
}

// day returns the calendar day of ts in loc as midnight UTC so days can be
// subtracted without DST surprises.
func day(ts time.Time, loc *time.Location) time.Time {
	y, m, d := ts.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func streak(recs []store.Record, now time.Time, loc *time.Location) int {
	if len(recs) == 0 {
		return 0
	}
	seen := make(map[time.Time]bool)
	var days []time.Time
	for _, r := range recs {
		d := day(r.Completed, loc)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	slices.SortFunc(days, func(a, b time.Time) int { return b.Compare(a) })

	today := day(now, loc)
	if !days[0].Equal(today) && !days[0].Equal(today.AddDate(0, 0, -1)) {
		return 0
	}
	n := 1
	for i := 1; i < len(days); i++ {
		if !days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			break
		}
		n++
	}
	return n
}

// Summary returns stars, streak and the most recent records, newest first.
func (t *Tracker) Summary(ctx context.Context, now time.Time) (Summary, error) {
	recs, err := t.History(ctx)
	if err != nil {
		return Summary{}, err
	}
	recent := slices.Clone(recs[max(0, len(recs)-RecentLimit):])
	slices.Reverse(recent)
	return Summary{
		Stars:     stars(recs),
		Streak:    streak(recs, now, t.opts.loc),
		Completed: len(recs),
		Recent:    recent,
	}, nil
}

// Clear forgets the whole history.
func (t *Tracker) Clear(ctx context.Context) error {
	if err := t.store.ClearRecords(ctx); err != nil {
		return fmt.Errorf("progress: clear: %w", err)
	}
	return nil
}
