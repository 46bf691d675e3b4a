package slotcount

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Fetcher is the backend call behind the cache.
type Fetcher interface {
	GetAvailableSlotCount(ctx context.Context, staffID, date, token string) (int, error)
}

// Cache holds free-slot counts per date for the calendar. A nil count means
// the value is loading. When a Redis client is set, counts are shared between
// tabs for the configured TTL.
type Cache struct {
	fetch  Fetcher
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu     sync.RWMutex
	staff  string
	counts map[string]*int
}

func New(fetch Fetcher, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		fetch:  fetch,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "slotcount")),
		counts: make(map[string]*int),
	}
}

func key(staffID, date string) string {
	return fmt.Sprintf("coordinator:slotcount:%s:%s", staffID, date)
}

// Refresh loads the count for date, from Redis when fresh, else the backend.
func (c *Cache) Refresh(ctx context.Context, staffID, date, token string) (int, error) {
	c.mu.Lock()
	if c.staff != staffID {
		c.staff = staffID
		c.counts = make(map[string]*int)
	}
	if _, ok := c.counts[date]; !ok {
		c.counts[date] = nil
	}
	c.mu.Unlock()

	if n, ok := c.fromRedis(ctx, staffID, date); ok {
		c.store(staffID, date, n)
		return n, nil
	}

	n, err := c.fetch.GetAvailableSlotCount(ctx, staffID, date, token)
	if err != nil {
		return 0, fmt.Errorf("slot count %s: %w", date, err)
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, key(staffID, date), n, c.ttl).Err(); err != nil {
			c.logger.Warn("cache slot count failed", zap.String("date", date), zap.Error(err))
		}
	}
	c.store(staffID, date, n)
	return n, nil
}

// Invalidate drops a count after a lock change on that date.
func (c *Cache) Invalidate(ctx context.Context, staffID, date string) {
	c.mu.Lock()
	if c.staff == staffID {
		delete(c.counts, date)
	}
	c.mu.Unlock()

	if c.rdb != nil {
		if err := c.rdb.Del(ctx, key(staffID, date)).Err(); err != nil {
			c.logger.Warn("drop cached slot count failed", zap.String("date", date), zap.Error(err))
		}
	}
}

// Get returns the count for date. present is false when the date was never
// requested; a nil count with present true means loading.
func (c *Cache) Get(date string) (count *int, present bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.counts[date]
	if !ok || v == nil {
		return nil, ok
	}
	n := *v
	return &n, true
}

func (c *Cache) Snapshot() map[string]*int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*int, len(c.counts))
	for d, v := range c.counts {
		if v == nil {
			out[d] = nil
			continue
		}
		n := *v
		out[d] = &n
	}
	return out
}

func (c *Cache) store(staffID, date string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staff != staffID {
		return
	}
	c.counts[date] = &n
}

func (c *Cache) fromRedis(ctx context.Context, staffID, date string) (int, bool) {
	if c.rdb == nil {
		return 0, false
	}

	raw, err := c.rdb.Get(ctx, key(staffID, date)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("read cached slot count failed", zap.String("date", date), zap.Error(err))
		}
		return 0, false
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
