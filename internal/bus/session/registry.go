package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventPublisher lets the registry emit lifecycle events without depending
// on the event log package.
type EventPublisher interface {
	Emit(ctx context.Context, eventType, payload, sessionID, channel string) error
}

// Registry implements session lifecycle: registration with dedup by
// (machine, cwd, pid), heartbeats, and enriched listing.
type Registry struct {
	log    *slog.Logger
	store  Store
	events EventPublisher
}

// NewRegistry creates a Registry. events may be nil, in which case no
// lifecycle events are emitted.
func NewRegistry(log *slog.Logger, store Store, events EventPublisher) *Registry {
	return &Registry{log: log, store: store, events: events}
}

// View is a session enriched with derived liveness fields for listing.
type View struct {
	Session
	AgeSeconds  int64
	IdleSeconds int64
	Alive       bool
}

// Register creates a new session. name defaults to the repo derived from
// cwd, machine to the local hostname. When pid is given and a session with
// the same (machine, cwd, pid) already exists, the old session is replaced.
func (r *Registry) Register(ctx context.Context, name, cwd string, pid *int, machine string) (Session, error) {
	if machine == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		machine = host
	}

	repo := DeriveRepo(cwd)
	if name == "" {
		name = repo
	}

	if pid != nil {
		prev, ok, err := r.store.FindSessionByKey(ctx, machine, cwd, *pid)
		if err != nil {
			return Session{}, fmt.Errorf("checking for duplicate session: %w", err)
		}
		if ok {
			if _, err := r.store.DeleteSession(ctx, prev.ID); err != nil {
				return Session{}, fmt.Errorf("replacing session %s: %w", prev.ID, err)
			}
			r.log.Info("replaced duplicate session",
				"old_session_id", prev.ID, "machine", machine, "cwd", cwd, "pid", *pid)
		}
	}

	now := time.Now().UTC()
	s := Session{
		ID:            uuid.Must(uuid.NewV7()).String(),
		Name:          name,
		Machine:       machine,
		Cwd:           cwd,
		Repo:          repo,
		RegisteredAt:  now,
		LastHeartbeat: now,
		PID:           pid,
	}

	if err := r.store.AddSession(ctx, s); err != nil {
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}

	r.emit(ctx, "session_registered", s)
	return s, nil
}

// Unregister removes a session. Removing an unknown id reports false
// without error.
func (r *Registry) Unregister(ctx context.Context, id string) (bool, error) {
	s, ok, err := r.store.GetSession(ctx, id)
	if err != nil {
		return false, fmt.Errorf("looking up session %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	removed, err := r.store.DeleteSession(ctx, id)
	if err != nil {
		return false, fmt.Errorf("deleting session %s: %w", id, err)
	}
	if removed {
		r.emit(ctx, "session_unregistered", s)
	}
	return removed, nil
}

// Heartbeat refreshes a session's last_heartbeat. Reports false when the
// session does not exist.
func (r *Registry) Heartbeat(ctx context.Context, id string) (bool, error) {
	return r.store.UpdateHeartbeat(ctx, id, time.Now().UTC())
}

// Get returns a single session by id.
func (r *Registry) Get(ctx context.Context, id string) (Session, bool, error) {
	return r.store.GetSession(ctx, id)
}

// List returns all sessions enriched with age, idle time, and a liveness
// probe of the reported pid.
func (r *Registry) List(ctx context.Context) ([]View, error) {
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	now := time.Now().UTC()
	views := make([]View, len(sessions))
	for i, s := range sessions {
		views[i] = View{
			Session:     s,
			AgeSeconds:  int64(now.Sub(s.RegisteredAt).Seconds()),
			IdleSeconds: int64(now.Sub(s.LastHeartbeat).Seconds()),
			Alive:       Alive(s.PID),
		}
	}
	return views, nil
}

func (r *Registry) emit(ctx context.Context, eventType string, s Session) {
	if r.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"session_id": s.ID,
		"name":       s.Name,
		"repo":       s.Repo,
		"machine":    s.Machine,
	})
	if err != nil {
		r.log.Warn("marshaling lifecycle payload", "error", err)
		return
	}
	// The session is already durable; a failed lifecycle event is logged,
	// not surfaced to the registering caller.
	if err := r.events.Emit(ctx, eventType, string(payload), s.ID, "all"); err != nil {
		r.log.Warn("emitting lifecycle event", "type", eventType, "session_id", s.ID, "error", err)
	}
}
