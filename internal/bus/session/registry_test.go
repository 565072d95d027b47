package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store for registry tests.
type fakeStore struct {
	sessions map[string]Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]Session)}
}

func (f *fakeStore) AddSession(_ context.Context, s Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (Session, bool, error) {
	s, ok := f.sessions[id]
	return s, ok, nil
}

func (f *fakeStore) DeleteSession(_ context.Context, id string) (bool, error) {
	_, ok := f.sessions[id]
	delete(f.sessions, id)
	return ok, nil
}

func (f *fakeStore) ListSessions(_ context.Context) ([]Session, error) {
	var out []Session
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) SessionCount(_ context.Context) (int, error) {
	return len(f.sessions), nil
}

func (f *fakeStore) FindSessionByKey(_ context.Context, machine, cwd string, pid int) (Session, bool, error) {
	for _, s := range f.sessions {
		if s.PID != nil && s.Machine == machine && s.Cwd == cwd && *s.PID == pid {
			return s, true, nil
		}
	}
	return Session{}, false, nil
}

func (f *fakeStore) UpdateHeartbeat(_ context.Context, id string, t time.Time) (bool, error) {
	s, ok := f.sessions[id]
	if !ok {
		return false, nil
	}
	if t.After(s.LastHeartbeat) {
		s.LastHeartbeat = t
		f.sessions[id] = s
	}
	return true, nil
}

func (f *fakeStore) CleanupStale(_ context.Context, timeout time.Duration) ([]Session, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	var removed []Session
	for id, s := range f.sessions {
		if s.LastHeartbeat.Before(cutoff) {
			removed = append(removed, s)
			delete(f.sessions, id)
		}
	}
	return removed, nil
}

type capturedEvent struct {
	eventType string
	payload   string
	sessionID string
	channel   string
}

type fakePublisher struct {
	events []capturedEvent
}

func (f *fakePublisher) Emit(_ context.Context, eventType, payload, sessionID, channel string) error {
	f.events = append(f.events, capturedEvent{eventType, payload, sessionID, channel})
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeStore, *fakePublisher) {
	t.Helper()
	store := newFakeStore()
	pub := &fakePublisher{}
	return NewRegistry(slog.Default(), store, pub), store, pub
}

func TestRegistry(t *testing.T) {
	t.Run("register fills defaults", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)

		s, err := r.Register(context.Background(), "", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, "myrepo", s.Name)
		assert.Equal(t, "myrepo", s.Repo)
		assert.Equal(t, "host-1", s.Machine)
		assert.False(t, s.RegisteredAt.IsZero())
		assert.True(t, s.LastHeartbeat.Equal(s.RegisteredAt))
	})

	t.Run("register defaults machine to hostname", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)

		s, err := r.Register(context.Background(), "w", "/src/myrepo", nil, "")
		require.NoError(t, err)
		assert.NotEmpty(t, s.Machine)
	})

	t.Run("register emits lifecycle event", func(t *testing.T) {
		r, _, pub := newTestRegistry(t)

		s, err := r.Register(context.Background(), "w", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)

		require.Len(t, pub.events, 1)
		ev := pub.events[0]
		assert.Equal(t, "session_registered", ev.eventType)
		assert.Equal(t, s.ID, ev.sessionID)
		assert.Equal(t, "all", ev.channel)

		var payload map[string]any
		require.NoError(t, json.Unmarshal([]byte(ev.payload), &payload))
		assert.Equal(t, s.ID, payload["session_id"])
		assert.Equal(t, "myrepo", payload["repo"])
	})

	t.Run("register replaces duplicate triple", func(t *testing.T) {
		r, store, _ := newTestRegistry(t)
		ctx := context.Background()
		pid := 100

		first, err := r.Register(ctx, "a", "/src/myrepo", &pid, "host-1")
		require.NoError(t, err)

		second, err := r.Register(ctx, "b", "/src/myrepo", &pid, "host-1")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)

		n, err := store.SessionCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, ok, err := store.GetSession(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("sessions without pid never dedup", func(t *testing.T) {
		r, store, _ := newTestRegistry(t)
		ctx := context.Background()

		_, err := r.Register(ctx, "a", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)
		_, err = r.Register(ctx, "b", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)

		n, err := store.SessionCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("unregister", func(t *testing.T) {
		r, _, pub := newTestRegistry(t)
		ctx := context.Background()

		s, err := r.Register(ctx, "w", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)

		removed, err := r.Unregister(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		require.Len(t, pub.events, 2)
		assert.Equal(t, "session_unregistered", pub.events[1].eventType)
	})

	t.Run("unregister unknown id", func(t *testing.T) {
		r, _, pub := newTestRegistry(t)

		removed, err := r.Unregister(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Empty(t, pub.events)
	})

	t.Run("heartbeat", func(t *testing.T) {
		r, _, _ := newTestRegistry(t)
		ctx := context.Background()

		s, err := r.Register(ctx, "w", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)

		ok, err := r.Heartbeat(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.Heartbeat(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list enriches views", func(t *testing.T) {
		r, store, _ := newTestRegistry(t)
		ctx := context.Background()

		past := time.Now().UTC().Add(-90 * time.Second)
		require.NoError(t, store.AddSession(ctx, Session{
			ID:            "s1",
			Name:          "w",
			Machine:       "host-1",
			Cwd:           "/src/myrepo",
			Repo:          "myrepo",
			RegisteredAt:  past,
			LastHeartbeat: past,
		}))

		views, err := r.List(ctx)
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.GreaterOrEqual(t, views[0].AgeSeconds, int64(90))
		assert.GreaterOrEqual(t, views[0].IdleSeconds, int64(90))
		assert.True(t, views[0].Alive)
	})

	t.Run("nil publisher is tolerated", func(t *testing.T) {
		r := NewRegistry(slog.Default(), newFakeStore(), nil)

		s, err := r.Register(context.Background(), "w", "/src/myrepo", nil, "host-1")
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
	})
}
