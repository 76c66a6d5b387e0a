package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	dom "github.com/2ao1-1/todo-backend/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyListPrefix = "todo:list:"

// TodoCache caches each user's todo list (with tasks) in Redis.
// Invalidated on every write for that user; the derived completion
// percentage is computed on read and never cached.
type TodoCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTodoCache returns a new TodoCache.
func NewTodoCache(rdb *redis.Client, ttl time.Duration) *TodoCache {
	return &TodoCache{rdb: rdb, ttl: ttl}
}

func listKey(userID int64) string {
	return keyListPrefix + strconv.FormatInt(userID, 10)
}

// GetList returns the cached list for the user. ok is false on a miss;
// a cached empty list is a hit, not a miss.
func (c *TodoCache) GetList(ctx context.Context, userID int64) (list []dom.Todo, ok bool, err error) {
	b, err := c.rdb.Get(ctx, listKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, false, err
	}
	if list == nil {
		list = []dom.Todo{}
	}
	return list, true, nil
}

// SetList stores the user's list in cache. An empty list is stored as [],
// never null, so it still reads back as a hit.
func (c *TodoCache) SetList(ctx context.Context, userID int64, list []dom.Todo) error {
	if list == nil {
		list = []dom.Todo{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, listKey(userID), b, c.ttl).Err()
}

// Invalidate drops the cached list for the user (cache invalidation on write).
func (c *TodoCache) Invalidate(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, listKey(userID)).Err()
}
