package session

import (
	"context"
	"time"
)

// EventType names a session state transition.
type EventType string

const (
	EventCreated    EventType = "session.created"
	EventEvicted    EventType = "session.evicted"
	EventSuspicious EventType = "session.suspicious"
	EventExpired    EventType = "session.expired"
	EventTerminated EventType = "session.terminated"
)

// Event is delivered to hooks after the transition has been persisted.
type Event struct {
	Type    EventType
	Session *Session
	Reason  string
	At      time.Time
}

// EventHook receives session events. Hooks run synchronously on the calling
// goroutine and must not block.
type EventHook func(ctx context.Context, e Event)
