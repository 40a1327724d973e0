package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/readalong/internal/resilience"
)

// BreakerReporter is implemented by the resilience fallback wrappers.
type BreakerReporter interface {
	States() []resilience.EntryState
	Healthy() bool
}

// Breakers reports an optional backend as failing when every breaker in r
// is open.
func Breakers(name string, r BreakerReporter) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			if r.Healthy() {
				return nil
			}
			var open []string
			for _, s := range r.States() {
				open = append(open, s.Name+"="+s.State.String())
			}
			return fmt.Errorf("all backends unavailable (%s)", strings.Join(open, ", "))
		},
	}
}

// Breaker reports an optional backend guarded by a single breaker.
func Breaker(name string, cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name:     name,
		Optional: true,
		Check: func(context.Context) error {
			if st := cb.State(); st == resilience.StateOpen {
				return fmt.Errorf("circuit %s", st)
			}
			return nil
		},
	}
}

// Ping wraps a required dependency probe such as a database ping.
func Ping(name string, ping func(ctx context.Context) error) Checker {
	return Checker{Name: name, Check: ping}
}
