// Package event implements the append-only event log at the center of the bus.
package event

import (
	"context"
	"time"
)

// DefaultChannel is the broadcast channel assigned when a publisher does not
// name one.
const DefaultChannel = "all"

// SystemSessionID marks events emitted by the bus itself (lifecycle events,
// sweeper output) rather than by a registered session.
const SystemSessionID = "system"

// Event is an immutable, numbered message. The JSON tags define the outbound
// webhook wire format.
type Event struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	Payload   string    `json:"payload"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
}

// Store persists events. AddEvent assigns the next id and trims rows beyond
// the retention cap in the same transaction, so ids are strictly increasing
// and the total count never exceeds the cap.
type Store interface {
	AddEvent(ctx context.Context, eventType, payload, sessionID, channel string) (Event, error)

	// GetEvents returns events with id > sinceID ascending by id, optionally
	// restricted to the given channels (nil means no filter) and truncated
	// to limit (<= 0 means no limit).
	GetEvents(ctx context.Context, sinceID int64, limit int, channels []string) ([]Event, error)

	// LastEventID returns the highest assigned event id, 0 when empty.
	LastEventID(ctx context.Context) (int64, error)
}
