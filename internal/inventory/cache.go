package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const snapshotKeyPrefix = "stockledger:snapshot:"

// SnapshotCache caches stock snapshots in Redis. Committed movements delete
// the product key, so a cached snapshot is never newer than the database and
// is at most ttl old.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewSnapshotCache instantiates the cache helper. A nil client disables caching.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(productID int64) string {
	return snapshotKeyPrefix + strconv.FormatInt(productID, 10)
}

// Fetch returns the cached snapshot or populates it using loader. Concurrent
// misses for the same product share one loader call.
func (c *SnapshotCache) Fetch(ctx context.Context, productID int64, loader func(context.Context) (StockSnapshot, error)) (StockSnapshot, error) {
	if loader == nil {
		return StockSnapshot{}, errors.New("inventory: snapshot loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := snapshotKey(productID)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var snap StockSnapshot
		if err := json.Unmarshal(payload, &snap); err == nil {
			return snap, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}

	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		snap, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(snap); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttl).Err()
		}
		return snap, nil
	})
	select {
	case <-ctx.Done():
		return StockSnapshot{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return StockSnapshot{}, res.Err
		}
		return res.Val.(StockSnapshot), nil
	}
}

// Invalidate drops the cached snapshot of productID.
func (c *SnapshotCache) Invalidate(ctx context.Context, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(productID)).Err()
}
