// Package eventstest provides an in-memory Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/rzbill/ldes/internal/events"
)

// Recorder keeps every published event in order.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	// Err, when set, is returned by Publish and nothing is recorded.
	Err error
}

func (r *Recorder) Publish(_ context.Context, evs ...events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, evs...)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// OfKind returns the published events of kind k.
func (r *Recorder) OfKind(k events.Kind) []events.Event {
	var out []events.Event
	for _, ev := range r.Events() {
		if ev.Kind() == k {
			out = append(out, ev)
		}
	}
	return out
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
