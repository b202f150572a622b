package photos

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/ytakahashi/boardsync/internal/models"
)

// Cache wraps a Lister with Redis-backed caching of result pages. A nil
// client or zero TTL turns caching off.
type Cache struct {
	base  Lister
	redis *redis.Client
	ttl   time.Duration
}

func NewCache(base Lister, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("photos.NewCache: base lister is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListPhotos(ctx context.Context, page, perPage int) ([]models.Photo, error) {
	page, perPage = Normalize(page, perPage)
	key := pageCacheKey(page, perPage)

	if photos, ok := c.load(ctx, key); ok {
		return photos, nil
	}
	photos, err := c.base.ListPhotos(ctx, page, perPage)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, photos)
	return photos, nil
}

func (c *Cache) load(ctx context.Context, key string) ([]models.Photo, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.WithError(err).WithField("key", key).Warn("photo cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var photos []models.Photo
	if err := sonic.Unmarshal(data, &photos); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return photos, true
}

func (c *Cache) store(ctx context.Context, key string, photos []models.Photo) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(photos)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("photo cache write failed")
	}
}

func pageCacheKey(page, perPage int) string {
	return fmt.Sprintf("photos:%d:%d", page, perPage)
}
