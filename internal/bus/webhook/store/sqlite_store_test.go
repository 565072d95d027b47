package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebastianm/agentbus/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db)
}

func TestSQLiteStore(t *testing.T) {
	t.Run("add and get", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		wh, err := s.AddWebhook(ctx, "http://example.com/hook", "repo:myrepo", []string{"a", "b"}, "secret")
		require.NoError(t, err)
		assert.True(t, wh.Active)
		assert.False(t, wh.CreatedAt.IsZero())

		got, ok, err := s.GetWebhook(ctx, wh.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "http://example.com/hook", got.URL)
		assert.Equal(t, "repo:myrepo", got.ChannelFilter)
		assert.Equal(t, []string{"a", "b"}, got.EventTypes)
		assert.Equal(t, "secret", got.Secret)
		assert.True(t, got.Active)
	})

	t.Run("absent filters round trip as empty", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		wh, err := s.AddWebhook(ctx, "http://example.com/hook", "", nil, "")
		require.NoError(t, err)

		got, ok, err := s.GetWebhook(ctx, wh.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Empty(t, got.ChannelFilter)
		assert.Empty(t, got.EventTypes)
		assert.Empty(t, got.Secret)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newTestStore(t)

		_, ok, err := s.GetWebhook(context.Background(), 999)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list with active filter", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		first, err := s.AddWebhook(ctx, "http://example.com/a", "", nil, "")
		require.NoError(t, err)
		_, err = s.AddWebhook(ctx, "http://example.com/b", "", nil, "")
		require.NoError(t, err)

		ok, err := s.SetWebhookActive(ctx, first.ID, false)
		require.NoError(t, err)
		assert.True(t, ok)

		all, err := s.ListWebhooks(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		active, err := s.ListWebhooks(ctx, true)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "http://example.com/b", active[0].URL)
	})

	t.Run("delete", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		wh, err := s.AddWebhook(ctx, "http://example.com/a", "", nil, "")
		require.NoError(t, err)

		removed, err := s.DeleteWebhook(ctx, wh.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.DeleteWebhook(ctx, wh.ID)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("set active on unknown id", func(t *testing.T) {
		s := newTestStore(t)

		ok, err := s.SetWebhookActive(context.Background(), 999, true)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ids keep increasing after delete", func(t *testing.T) {
		s := newTestStore(t)
		ctx := context.Background()

		first, err := s.AddWebhook(ctx, "http://example.com/a", "", nil, "")
		require.NoError(t, err)
		_, err = s.DeleteWebhook(ctx, first.ID)
		require.NoError(t, err)

		second, err := s.AddWebhook(ctx, "http://example.com/b", "", nil, "")
		require.NoError(t, err)
		assert.Greater(t, second.ID, first.ID)
	})
}
