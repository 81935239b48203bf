package views

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/eldarg/pinboard/backend/internal/cache"
	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/metrics"
	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	viewKeyPrefix = "image:views:"

	popularCacheKey = "images:popular"
	popularCacheTTL = 15 * time.Minute
	popularWindow   = 14 * 24 * time.Hour
)

var ErrImageNotFound = errors.New("image not found")

// viewStore is the slice of the redis client the counter needs.
type viewStore interface {
	Get(ctx context.Context, key string) (string, error)
	GetInt(ctx context.Context, key string) (int64, error)
	SetNX(ctx context.Context, key string, value interface{}) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	SetEx(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Counter tracks per-image view counts. Counts live in redis for cheap
// increments, seeded from the images row on first access and written
// back on every hit so a cache flush never loses more than the
// in-flight delta. Without redis it falls back to the database alone.
type Counter struct {
	db    *gorm.DB
	redis viewStore
}

func NewCounter(db *gorm.DB, rc *cache.RedisClient) *Counter {
	c := &Counter{db: db}
	if rc != nil {
		c.redis = rc
	}
	return c
}

func viewKey(imageID string) string {
	return viewKeyPrefix + imageID
}

// Hit records one view and returns the new total
func (c *Counter) Hit(ctx context.Context, imageID string) (int64, error) {
	var image models.Image
	if err := c.db.WithContext(ctx).Select("id", "views").First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrImageNotFound
		}
		return 0, err
	}

	if c.redis == nil {
		if err := c.db.WithContext(ctx).Model(&models.Image{}).
			Where("id = ?", imageID).
			UpdateColumn("views", gorm.Expr("views + 1")).Error; err != nil {
			return 0, err
		}
		return image.Views + 1, nil
	}

	key := viewKey(imageID)
	// Seed from the row so restarts continue from the stored total
	if _, err := c.redis.SetNX(ctx, key, image.Views); err != nil {
		logger.Log.Warn("Failed to seed view counter", zap.Error(err))
	}

	total, err := c.redis.Incr(ctx, key)
	if err != nil {
		return 0, err
	}

	if err := c.db.WithContext(ctx).Model(&models.Image{}).
		Where("id = ?", imageID).
		UpdateColumn("views", total).Error; err != nil {
		logger.Log.Warn("Failed to write back view count",
			zap.String("image_id", imageID), zap.Error(err))
	}

	return total, nil
}

// Total returns the current view count without recording a view
func (c *Counter) Total(ctx context.Context, imageID string) (int64, error) {
	if c.redis != nil {
		total, err := c.redis.GetInt(ctx, viewKey(imageID))
		if err == nil {
			return total, nil
		}
		if !errors.Is(err, redis.Nil) {
			logger.Log.Warn("Failed to read view counter", zap.Error(err))
		}
	}

	var image models.Image
	if err := c.db.WithContext(ctx).Select("views").First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrImageNotFound
		}
		return 0, err
	}
	return image.Views, nil
}

// MostPopular returns up to limit images posted within the last two
// weeks, most viewed first. The result is cached for fifteen minutes.
func (c *Counter) MostPopular(ctx context.Context, limit int) ([]models.Image, error) {
	if limit <= 0 {
		limit = 10
	}

	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, popularCacheKey); err == nil {
			var cached []models.Image
			if uerr := json.Unmarshal([]byte(raw), &cached); uerr == nil {
				metrics.Get().CacheHitsTotal.WithLabelValues("popular_images").Inc()
				if len(cached) > limit {
					cached = cached[:limit]
				}
				return cached, nil
			}
		}
		metrics.Get().CacheMissesTotal.WithLabelValues("popular_images").Inc()
	}

	cutoff := time.Now().UTC().Add(-popularWindow)
	var images []models.Image
	if err := c.db.WithContext(ctx).
		Where("created_at > ?", cutoff).
		Order("views DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&images).Error; err != nil {
		return nil, err
	}

	if c.redis != nil {
		if raw, err := json.Marshal(images); err == nil {
			if serr := c.redis.SetEx(ctx, popularCacheKey, raw, popularCacheTTL); serr != nil {
				logger.Log.Warn("Failed to cache popular images", zap.Error(serr))
			}
		}
	}

	return images, nil
}
