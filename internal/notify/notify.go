// Package notify delivers scheduler facts (track queued, review milestones,
// integrity alerts) to chat and email collaborators. Delivery is best-effort
// and always happens after the originating transaction commits.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Kind names an emitted fact.
type Kind string

const (
	TrackQueued     Kind = "track.queued"
	ReviewMilestone Kind = "review.milestone"
	IntegrityAlert  Kind = "integrity.alert"
)

// Event is one emitted fact.
type Event struct {
	Kind        Kind      `json:"kind" validate:"required,oneof=track.queued review.milestone integrity.alert"`
	TrackID     string    `json:"track_id,omitempty" validate:"required_unless=Kind integrity.alert"`
	TrackTitle  string    `json:"track_title,omitempty"`
	ArtistEmail string    `json:"artist_email,omitempty" validate:"omitempty,email"`
	Completed   int       `json:"completed,omitempty" validate:"gte=0"`
	Requested   int       `json:"requested,omitempty" validate:"gte=0"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

// Emitter accepts events for delivery.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// IsMilestone reports whether completed is the half-way (rounded up) or final
// count for a track requesting requested reviews.
func IsMilestone(completed, requested int) bool {
	if requested <= 0 || completed <= 0 {
		return false
	}
	return completed == (requested+1)/2 || completed == requested
}

// Fanout delivers each event to every sink synchronously.
type Fanout struct {
	sinks []Sink
}

// NewFanout returns a Fanout over sinks.
func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Emit delivers ev to all sinks. A failing sink does not stop the rest;
// failures are logged and returned joined.
func (f *Fanout) Emit(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Deliver(ctx, ev); err != nil {
			log.Printf("notify: %s sink: %s %s: %v", s.Name(), ev.Kind, ev.TrackID, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

// Fire emits ev on e and logs a failure instead of returning it. Callers use
// it after a commit, where a delivery failure must not fail the operation.
func Fire(ctx context.Context, e Emitter, ev Event) {
	if e == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := e.Emit(ctx, ev); err != nil {
		log.Printf("notify: emit %s %s: %v", ev.Kind, ev.TrackID, err)
	}
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, ev Event) error {
	m := Format(ev)
	log.Printf("notify: %s: %s", m.Title, m.Body)
	return nil
}
