// Package queue carries auth events over RabbitMQ: a publisher used by the
// session service and a background consumer that keeps an audit log.
package queue // event wire format

import (
	"time" // timeouts and timestamps

	"github.com/iliyamo/auth-session/internal/service" // auth state machine
)

// AuthEvent is the JSON payload of one message on the auth events queue.
// It identifies the account and the transition, never the credentials.
type AuthEvent struct {
	Type       string `json:"type"`
	Username   string `json:"username"`
	OccurredAt string `json:"occurred_at"` // RFC3339, UTC
}

func newAuthEvent(ev service.Event) AuthEvent {
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return AuthEvent{
		Type:       ev.Type,
		Username:   ev.Username,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
