// Package mock provides a test double for events.Publisher.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/readalong/internal/events"
)

// Publisher records published events.
type Publisher struct {
	mu sync.Mutex

	// PublishErr, if non-nil, is returned by Publish.
	PublishErr error

	// Published records every event passed to Publish.
	Published []events.Event

	// Closed is set by Close.
	Closed bool
}

var _ events.Publisher = (*Publisher)(nil)

// Publish records e and returns PublishErr.
func (p *Publisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Published = append(p.Published, e)
	return p.PublishErr
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.Published)
}

// Kinds returns the kinds of the recorded events in order.
func (p *Publisher) Kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.Published))
	for i, e := range p.Published {
		out[i] = e.Kind
	}
	return out
}
