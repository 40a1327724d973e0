// Package letterstats keeps per-letter attempt counters used to find the
// letters a child struggles with.
package letterstats

import (
	"context"
	"strings"
	"time"
)

// Stat holds the counters of one letter.
type Stat struct {
	Letter   string    `json:"letter"`
	Total    int       `json:"total_attempts"`
	Mistakes int       `json:"mistakes"`
	LastSeen time.Time `json:"last_seen"`
}

// Weight ranks how much practice a letter needs: the mistake ratio plus a
// tenth per mistake, so repeated trouble outranks a single slip.
func (s Stat) Weight() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Mistakes)/float64(s.Total) + 0.1*float64(s.Mistakes)
}

// Store records attempts. Implementations must be safe for concurrent use.
type Store interface {
	// Record counts one attempt at letter and returns the updated counters.
	Record(ctx context.Context, letter string, correct bool, at time.Time) (Stat, error)

	// All returns the counters of every letter seen, in no particular order.
	All(ctx context.Context) ([]Stat, error)

	// Clear forgets everything.
	Clear(ctx context.Context) error
}

// Normalize lowercases letter and trims surrounding spaces, keeping a lone
// space intact. Empty results are not recorded.
func Normalize(letter string) string {
	if strings.TrimSpace(letter) == "" {
		return letter
	}
	return strings.ToLower(strings.TrimSpace(letter))
}
