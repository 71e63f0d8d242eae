package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StructureCache stores BOM adjacency in Redis. Only graph structure is
// cached; stock quantities are re-read from the store on every explosion.
type StructureCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStructureCache constructs the cache with the given entry TTL.
func NewStructureCache(client *redis.Client, ttl time.Duration) *StructureCache {
	return &StructureCache{client: client, ttl: ttl}
}

func (c *StructureCache) key(rootID int64) string {
	return fmt.Sprintf("catalog:bom:adjacency:%d", rootID)
}

// Get returns the cached adjacency for rootID, or ok=false on miss or when
// the cache is unavailable.
func (c *StructureCache) Get(ctx context.Context, rootID int64) (map[int64][]int64, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, c.key(rootID)).Bytes()
	if err != nil {
		return nil, false
	}
	var adjacency map[int64][]int64
	if err := json.Unmarshal(payload, &adjacency); err != nil {
		return nil, false
	}
	return adjacency, true
}

// Set stores the adjacency for rootID. Failures are swallowed; the cache is
// an optimisation only.
func (c *StructureCache) Set(ctx context.Context, rootID int64, adjacency map[int64][]int64) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(adjacency)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(rootID), payload, c.ttl).Err()
}

// Invalidate drops the cached adjacency for rootID.
func (c *StructureCache) Invalidate(ctx context.Context, rootID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, c.key(rootID)).Err()
}
