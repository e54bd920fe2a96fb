package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*RedisUnreadCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisUnreadCache(client, 15*time.Second), mr
}

func TestUnreadCacheRoundTrip(t *testing.T) {
	c, _ := setupCache(t)
	ctx := t.Context()

	_, hit, err := c.Get(ctx, "viewer")
	require.NoError(t, err)
	assert.False(t, hit)

	want := []models.UnreadCount{{PeerID: "a", Count: 3}, {PeerID: "b", Count: 1}}
	require.NoError(t, c.Set(ctx, "viewer", want))

	got, hit, err := c.Get(ctx, "viewer")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
}

func TestUnreadCacheEmptyResultIsAHit(t *testing.T) {
	c, _ := setupCache(t)
	ctx := t.Context()

	require.NoError(t, c.Set(ctx, "viewer", nil))
	got, hit, err := c.Get(ctx, "viewer")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Empty(t, got)
}

func TestUnreadCacheExpiresAndInvalidates(t *testing.T) {
	c, mr := setupCache(t)
	ctx := t.Context()

	require.NoError(t, c.Set(ctx, "viewer", []models.UnreadCount{{PeerID: "a", Count: 1}}))
	mr.FastForward(16 * time.Second)
	_, hit, err := c.Get(ctx, "viewer")
	require.NoError(t, err)
	assert.False(t, hit, "entry must not outlive the ttl")

	require.NoError(t, c.Set(ctx, "viewer", []models.UnreadCount{{PeerID: "a", Count: 1}}))
	require.NoError(t, c.Set(ctx, "other", []models.UnreadCount{{PeerID: "a", Count: 2}}))
	require.NoError(t, c.Invalidate(ctx, "viewer", "other"))
	for _, id := range []string{"viewer", "other"} {
		_, hit, err = c.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, hit)
	}
}
