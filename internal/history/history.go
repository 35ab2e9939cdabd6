// Package history records launch lifecycle events to pluggable sinks.
package history

import (
	"context"
	"time"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	// EventLaunch marks a client process detected and bound to an account.
	EventLaunch EventType = "launch"
	// EventTerminate marks a tracked client terminated on request.
	EventTerminate EventType = "terminate"
	// EventLost marks a tracked client found dead during reconciliation.
	EventLost EventType = "lost"
)

// Event is one row in the launch history.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Account    string    `json:"account"`
	PID        int32     `json:"pid"`
	LaunchedAt time.Time `json:"launched_at"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }
func (NopSink) Close() error                      { return nil }

// MultiSink fans out to several sinks, returning the first error.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ctx context.Context, ev Event) error {
	var first error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSink) Close() error {
	var first error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
