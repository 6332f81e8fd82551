package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"taskman/domain"
)

type taskBackend interface {
	InsertTask(ctx context.Context, task domain.Task) (primitive.ObjectID, error)
	FindTasks(ctx context.Context, filter domain.TaskFilter, skip, limit int64) ([]domain.Task, error)
	GetTask(ctx context.Context, id primitive.ObjectID) (domain.Task, error)
	UpdateTask(ctx context.Context, id primitive.ObjectID, ownerID string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, id primitive.ObjectID, ownerID string) error
}

// Cache wraps a task store with Redis-backed caching for by-id reads. Writes
// go through to the backend and evict the affected key, so ownership checks
// made against a cached record stay within one TTL of the store.
type Cache struct {
	base  taskBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching task store wrapper using the provided Redis
// client and TTL.
func NewCache(base taskBackend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) InsertTask(ctx context.Context, task domain.Task) (primitive.ObjectID, error) {
	return c.base.InsertTask(ctx, task)
}

func (c *Cache) FindTasks(ctx context.Context, filter domain.TaskFilter, skip, limit int64) ([]domain.Task, error) {
	return c.base.FindTasks(ctx, filter, skip, limit)
}

func (c *Cache) GetTask(ctx context.Context, id primitive.ObjectID) (domain.Task, error) {
	if task, ok := c.loadTask(ctx, id); ok {
		return task, nil
	}
	task, err := c.base.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.storeTask(ctx, task)
	return task, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id primitive.ObjectID, ownerID string, patch domain.TaskPatch) error {
	if err := c.base.UpdateTask(ctx, id, ownerID, patch); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, id primitive.ObjectID, ownerID string) error {
	if err := c.base.DeleteTask(ctx, id, ownerID); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *Cache) loadTask(ctx context.Context, id primitive.ObjectID) (domain.Task, bool) {
	if c.redis == nil {
		return domain.Task{}, false
	}
	data, err := c.redis.Get(ctx, taskCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, taskCacheKey(id)).Err()
		}
		return domain.Task{}, false
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		_ = c.redis.Del(ctx, taskCacheKey(id)).Err()
		return domain.Task{}, false
	}
	return task, true
}

func (c *Cache) storeTask(ctx context.Context, task domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, taskCacheKey(task.ID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, id primitive.ObjectID) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, taskCacheKey(id)).Err()
}

func taskCacheKey(id primitive.ObjectID) string {
	return "task:" + id.Hex()
}
