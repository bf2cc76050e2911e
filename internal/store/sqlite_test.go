package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("add is idempotent", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, 1, "Mr Carrot"))
		require.NoError(t, s.Add(ctx, 1, "Mr Carrot"))

		items, err := s.ListItems(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"Mr Carrot"}, items)
	})

	t.Run("toggle round trip restores original state", func(t *testing.T) {
		before, err := s.ListItems(ctx, 2)
		require.NoError(t, err)

		require.NoError(t, s.Add(ctx, 2, "Tomatrio"))
		require.NoError(t, s.Remove(ctx, 2, "Tomatrio"))

		after, err := s.ListItems(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("remove missing row is not an error", func(t *testing.T) {
		assert.NoError(t, s.Remove(ctx, 99, "Cactus"))
	})

	t.Run("subscribers by item", func(t *testing.T) {
		require.NoError(t, s.Add(ctx, 10, "Shroombino"))
		require.NoError(t, s.Add(ctx, 11, "Shroombino"))
		require.NoError(t, s.Add(ctx, 11, "Cactus"))

		ids, err := s.ListSubscribers(ctx, "Shroombino")
		require.NoError(t, err)
		assert.Equal(t, []int64{10, 11}, ids)
	})
}

func TestSQLitePurgeUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser(ctx, User{UserID: 5, Username: "blocked", LastSeen: time.Now()}))
	require.NoError(t, s.Add(ctx, 5, "Mr Carrot"))
	require.NoError(t, s.Add(ctx, 5, "Tomatrio"))
	require.NoError(t, s.Add(ctx, 6, "Mr Carrot"))

	require.NoError(t, s.PurgeUser(ctx, 5))

	items, err := s.ListItems(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, items)

	ids, err := s.ListSubscribers(ctx, "Mr Carrot")
	require.NoError(t, err)
	assert.Equal(t, []int64{6}, ids)

	users, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.NotContains(t, users, int64(5))
}

func TestSQLiteUsersAndCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser(ctx, User{UserID: 1, Username: "a", FirstName: "A"}))
	require.NoError(t, s.UpsertUser(ctx, User{UserID: 1, Username: "a2", FirstName: "A"}))
	require.NoError(t, s.UpsertUser(ctx, User{UserID: 2, Username: "b", FirstName: "B"}))
	require.NoError(t, s.Add(ctx, 1, "Cactus"))
	require.NoError(t, s.Add(ctx, 2, "Cactus"))
	require.NoError(t, s.Add(ctx, 2, "Grape"))

	users, subs, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, users)
	assert.Equal(t, 3, subs)

	ids, err := s.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}
