package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrEmptyEventType rejects publishes with a blank event type.
var ErrEmptyEventType = errors.New("event_type must not be empty")

// Dispatcher receives each committed event for asynchronous webhook
// delivery. Dispatch must not block the publisher.
type Dispatcher interface {
	Dispatch(e Event)
}

// SessionDirectory resolves the repo and machine of a registered session,
// used to widen scoped queries to the channels addressed at that session.
type SessionDirectory interface {
	SessionScope(ctx context.Context, sessionID string) (repo, machine string, ok bool, err error)
}

// Log is the publish/query surface over the event store. Publish returns as
// soon as the event is durable; webhook dispatch proceeds concurrently.
type Log struct {
	log        *slog.Logger
	store      Store
	dispatcher Dispatcher
	sessions   SessionDirectory
}

// NewLog creates a Log. dispatcher and sessions may be nil; a nil dispatcher
// disables webhook delivery and a nil directory disables session-scoped
// channel defaults.
func NewLog(log *slog.Logger, store Store, dispatcher Dispatcher, sessions SessionDirectory) *Log {
	return &Log{log: log, store: store, dispatcher: dispatcher, sessions: sessions}
}

// Publish appends an event, assigning the next id. An empty sessionID is
// recorded as SystemSessionID, an empty channel as DefaultChannel.
func (l *Log) Publish(ctx context.Context, eventType, payload, sessionID, channel string) (Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return Event{}, ErrEmptyEventType
	}
	if sessionID == "" {
		sessionID = SystemSessionID
	}
	if channel == "" {
		channel = DefaultChannel
	}

	e, err := l.store.AddEvent(ctx, eventType, payload, sessionID, channel)
	if err != nil {
		return Event{}, fmt.Errorf("appending event: %w", err)
	}

	if l.dispatcher != nil {
		l.dispatcher.Dispatch(e)
	}
	return e, nil
}

// Emit is Publish for callers that only care about failure, e.g. lifecycle
// event emission from the session registry and the sweeper.
func (l *Log) Emit(ctx context.Context, eventType, payload, sessionID, channel string) error {
	_, err := l.Publish(ctx, eventType, payload, sessionID, channel)
	return err
}

// Events returns events after sinceID ascending. When sessionID is given and
// no explicit channels are, the query is scoped to the channels addressed at
// that session: the broadcast channel, its direct channel, and its repo and
// machine channels.
func (l *Log) Events(ctx context.Context, sinceID int64, sessionID string, channels []string, limit int) ([]Event, error) {
	if sessionID != "" && channels == nil {
		channels = []string{DefaultChannel, "session:" + sessionID}
		if l.sessions != nil {
			repo, machine, ok, err := l.sessions.SessionScope(ctx, sessionID)
			if err != nil {
				return nil, fmt.Errorf("resolving session scope: %w", err)
			}
			if ok {
				channels = append(channels, "repo:"+repo, "machine:"+machine)
			}
		}
	}
	return l.store.GetEvents(ctx, sinceID, limit, channels)
}

// LastEventID returns the id of the most recent event, 0 when the log is
// empty. Pollers use it to initialise their since_id cursor.
func (l *Log) LastEventID(ctx context.Context) (int64, error) {
	return l.store.LastEventID(ctx)
}
