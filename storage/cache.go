package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

type backend interface {
	FetchBoard(ctx context.Context) (domain.BoardState, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]domain.User, error)
	EnsureUser(ctx context.Context, u domain.User) error
	AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error
	ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)
}

const (
	boardCacheKey    = "board:snapshot"
	activityCacheKey = "board:activity"
)

// Cache wraps a Storage instance with Redis-backed caching for the board
// snapshot and the recent activity window. Every mutation evicts both keys.
// GetTask is deliberately uncached: the conflict gate must always see the
// authoritative lastModified.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchBoard(ctx context.Context) (domain.BoardState, error) {
	if board, ok := c.loadBoard(ctx); ok {
		return board, nil
	}
	board, err := c.base.FetchBoard(ctx)
	if err != nil {
		return domain.BoardState{}, err
	}
	c.store(ctx, boardCacheKey, board)
	return board, nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, t domain.Task) error {
	if err := c.base.UpdateTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) error {
	if err := c.base.DeleteTask(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *Cache) ListUsers(ctx context.Context) ([]domain.User, error) {
	return c.base.ListUsers(ctx)
}

func (c *Cache) EnsureUser(ctx context.Context, u domain.User) error {
	return c.base.EnsureUser(ctx, u)
}

func (c *Cache) AppendActivity(ctx context.Context, e domain.ActivityLogEntry) error {
	if err := c.base.AppendActivity(ctx, e); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

// ListActivity serves from a cached window of MaxLogLimit entries and slices
// down to the requested limit.
func (c *Cache) ListActivity(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	if limit <= 0 {
		limit = domain.DefaultLogLimit
	}
	if limit > domain.MaxLogLimit {
		limit = domain.MaxLogLimit
	}
	if entries, ok := c.loadActivity(ctx); ok {
		if len(entries) > limit {
			entries = entries[:limit]
		}
		return entries, nil
	}
	entries, err := c.base.ListActivity(ctx, domain.MaxLogLimit)
	if err != nil {
		return nil, err
	}
	c.store(ctx, activityCacheKey, entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (c *Cache) loadBoard(ctx context.Context) (domain.BoardState, bool) {
	if c.redis == nil {
		return domain.BoardState{}, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, boardCacheKey).Err()
		}
		return domain.BoardState{}, false
	}
	var board domain.BoardState
	if err := json.Unmarshal(data, &board); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey).Err()
		return domain.BoardState{}, false
	}
	return board, true
}

func (c *Cache) loadActivity(ctx context.Context) ([]domain.ActivityLogEntry, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, activityCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, activityCacheKey).Err()
		}
		return nil, false
	}
	var entries []domain.ActivityLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		_ = c.redis.Del(ctx, activityCacheKey).Err()
		return nil, false
	}
	return entries, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey, activityCacheKey).Result()
}
