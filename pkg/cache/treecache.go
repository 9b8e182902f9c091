package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/banyan/pkg/models"
)

// TreeCache stores built tree views keyed by the group version they were
// built against. A merge bumps the group version, so stale entries are never
// served; they simply age out through the TTL.
type TreeCache struct {
	client *Client
	ttl    time.Duration
}

func NewTreeCache(client *Client, ttl time.Duration) *TreeCache {
	return &TreeCache{
		client: client,
		ttl:    ttl,
	}
}

func treeKey(groupID string, groupVersion int, focusID string, depth int) string {
	return fmt.Sprintf("tree:%s:%d:%s:%d", groupID, groupVersion, focusID, depth)
}

func (c *TreeCache) Get(ctx context.Context, groupID string, groupVersion int, focusID string, depth int) (*models.TreeView, bool) {
	raw, err := c.client.rdb.Get(ctx, treeKey(groupID, groupVersion, focusID, depth)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.client.logger.WithContext(ctx).WithError(err).Warn("Tree cache read failed")
		return nil, false
	}

	var view models.TreeView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		c.client.logger.WithContext(ctx).WithError(err).Warn("Tree cache entry is corrupt")
		return nil, false
	}
	return &view, true
}

func (c *TreeCache) Set(ctx context.Context, groupID string, groupVersion int, focusID string, depth int, view *models.TreeView) {
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.rdb.Set(ctx, treeKey(groupID, groupVersion, focusID, depth), data, c.ttl).Err(); err != nil {
		c.client.logger.WithContext(ctx).WithError(err).Warn("Tree cache write failed")
	}
}
