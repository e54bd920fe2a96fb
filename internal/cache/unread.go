package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/redis/go-redis/v9"
)

// emptyMarker lets an empty result be cached, since Redis drops empty hashes
const emptyMarker = "_"

// UnreadCache caches a viewer's per-peer unread counts. Entries expire after
// the ttl and are dropped synchronously by every mutation that changes them.
type UnreadCache interface {
	Get(ctx context.Context, viewerID string) ([]models.UnreadCount, bool, error)
	Set(ctx context.Context, viewerID string, counts []models.UnreadCount) error
	Invalidate(ctx context.Context, viewerIDs ...string) error
}

// RedisUnreadCache stores counts in the hash unread:{viewerId}
type RedisUnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisUnreadCache creates a RedisUnreadCache
func NewRedisUnreadCache(client *redis.Client, ttl time.Duration) *RedisUnreadCache {
	return &RedisUnreadCache{client: client, ttl: ttl}
}

func unreadKey(viewerID string) string {
	return "unread:" + viewerID
}

func (c *RedisUnreadCache) Get(ctx context.Context, viewerID string) ([]models.UnreadCount, bool, error) {
	fields, err := c.client.HGetAll(ctx, unreadKey(viewerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	counts := make([]models.UnreadCount, 0, len(fields))
	for peer, raw := range fields {
		if peer == emptyMarker {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("corrupt unread entry for %s: %w", peer, err)
		}
		counts = append(counts, models.UnreadCount{PeerID: peer, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].PeerID < counts[j].PeerID })
	return counts, true, nil
}

func (c *RedisUnreadCache) Set(ctx context.Context, viewerID string, counts []models.UnreadCount) error {
	key := unreadKey(viewerID)
	values := make([]any, 0, 2*len(counts)+2)
	values = append(values, emptyMarker, "0")
	for _, uc := range counts {
		values = append(values, uc.PeerID, uc.Count)
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}

func (c *RedisUnreadCache) Invalidate(ctx context.Context, viewerIDs ...string) error {
	if len(viewerIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(viewerIDs))
	for _, id := range viewerIDs {
		keys = append(keys, unreadKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

// NoopUnreadCache never hits. Used when Redis is not configured.
type NoopUnreadCache struct{}

func (NoopUnreadCache) Get(context.Context, string) ([]models.UnreadCount, bool, error) {
	return nil, false, nil
}

func (NoopUnreadCache) Set(context.Context, string, []models.UnreadCount) error { return nil }

func (NoopUnreadCache) Invalidate(context.Context, ...string) error { return nil }
