package service // auth event publishing

import (
	"context" // cancellation and deadlines
	"time"    // timeouts and timestamps
)

// Event types emitted after successful state transitions.
const (
	EventUserRegistered   = "user.registered"
	EventSessionStarted   = "session.started"
	EventSessionRefreshed = "session.refreshed"
	EventSessionRevoked   = "session.revoked"
	EventSessionExpired   = "session.expired"
)

// Event describes one account transition.  It never carries credentials.
type Event struct {
	Type       string
	Username   string
	OccurredAt time.Time
}

// EventPublisher delivers auth events.  Failures are reported to the caller,
// which logs them and carries on.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
