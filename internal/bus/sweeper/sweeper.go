// Package sweeper expires sessions whose heartbeats have gone quiet.
package sweeper

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sebastianm/agentbus/internal/bus/session"
)

// SessionStore is the slice of the session store the sweeper needs.
type SessionStore interface {
	CleanupStale(ctx context.Context, timeout time.Duration) ([]session.Session, error)
}

// EventPublisher emits the session_expired lifecycle events.
type EventPublisher interface {
	Emit(ctx context.Context, eventType, payload, sessionID, channel string) error
}

// Sweeper periodically removes stale sessions and announces each removal on
// the broadcast channel. Errors are logged and the loop continues; the
// sweeper never takes the process down.
type Sweeper struct {
	log      *slog.Logger
	store    SessionStore
	events   EventPublisher
	interval time.Duration
	timeout  time.Duration
}

// New creates a Sweeper that runs every interval and expires sessions idle
// longer than timeout.
func New(log *slog.Logger, store SessionStore, events EventPublisher, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{log: log, store: store, events: events, interval: interval, timeout: timeout}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval, "timeout", s.timeout)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	removed, err := s.store.CleanupStale(ctx, s.timeout)
	if err != nil {
		s.log.Error("cleaning up stale sessions", "error", err)
		return
	}

	for _, sess := range removed {
		s.log.Info("expired stale session",
			"session_id", sess.ID, "name", sess.Name, "last_heartbeat", sess.LastHeartbeat)

		payload, err := json.Marshal(map[string]any{
			"session_id": sess.ID,
			"name":       sess.Name,
			"repo":       sess.Repo,
			"machine":    sess.Machine,
		})
		if err != nil {
			s.log.Error("marshaling expiry payload", "error", err)
			continue
		}
		if err := s.events.Emit(ctx, "session_expired", string(payload), sess.ID, "all"); err != nil {
			s.log.Error("emitting session_expired", "session_id", sess.ID, "error", err)
		}
	}
}
