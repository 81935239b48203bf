package favorites

import (
	"context"
	"errors"
	"time"

	"github.com/eldarg/pinboard/backend/internal/cache"
	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Anonymous favorites live in a redis set keyed by session until the
// visitor signs in; session sets expire on their own.
const sessionTTL = 14 * 24 * time.Hour

const sessionKeyPrefix = "favorites:session:"

var ErrImageNotFound = errors.New("image not found")

// sessionStore is the slice of the redis client the session tier needs.
type sessionStore interface {
	SAdd(ctx context.Context, key string, members ...interface{}) error
	SRem(ctx context.Context, key string, members ...interface{}) error
	SMembers(ctx context.Context, key string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Service keeps a visitor's favorite images across two tiers: a redis
// session set for anonymous visitors and favorites rows for signed-in
// users. Merge reconciles the tiers when a session signs in.
type Service struct {
	db    *gorm.DB
	redis sessionStore
}

// NewService creates a favorites service. redis may be nil, in which
// case the session tier is disabled and only signed-in favorites work.
func NewService(db *gorm.DB, redis *cache.RedisClient) *Service {
	s := &Service{db: db}
	if redis != nil {
		s.redis = redis
	}
	return s
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// Add marks an image as a favorite. Signed-in users get a favorites
// row; the session set is updated too so the flag survives sign-out.
func (s *Service) Add(ctx context.Context, sessionID, userID, imageID string) error {
	var image models.Image
	if err := s.db.WithContext(ctx).Select("id").First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImageNotFound
		}
		return err
	}

	if userID != "" {
		fav := models.Favorite{UserID: userID, ImageID: imageID}
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND image_id = ?", userID, imageID).
			FirstOrCreate(&fav).Error; err != nil {
			return err
		}
	}

	if s.redis != nil && sessionID != "" {
		key := sessionKey(sessionID)
		if err := s.redis.SAdd(ctx, key, imageID); err != nil {
			logger.Log.Warn("Failed to update session favorites", zap.Error(err))
		} else if err := s.redis.Expire(ctx, key, sessionTTL); err != nil {
			logger.Log.Warn("Failed to refresh session favorites TTL", zap.Error(err))
		}
	}

	return nil
}

// Remove clears the favorite flag from both tiers. Removing an image
// that was never favorited is not an error.
func (s *Service) Remove(ctx context.Context, sessionID, userID, imageID string) error {
	if userID != "" {
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND image_id = ?", userID, imageID).
			Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
	}

	if s.redis != nil && sessionID != "" {
		if err := s.redis.SRem(ctx, sessionKey(sessionID), imageID); err != nil {
			logger.Log.Warn("Failed to update session favorites", zap.Error(err))
		}
	}

	return nil
}

// List returns the favorite images visible to this visitor: the union
// of the session set and, when signed in, the favorites rows. Images
// deleted since being favorited are silently dropped.
func (s *Service) List(ctx context.Context, sessionID, userID string) ([]models.Image, error) {
	ids := make(map[string]bool)

	if userID != "" {
		var rowIDs []string
		if err := s.db.WithContext(ctx).
			Model(&models.Favorite{}).
			Where("user_id = ?", userID).
			Pluck("image_id", &rowIDs).Error; err != nil {
			return nil, err
		}
		for _, id := range rowIDs {
			ids[id] = true
		}
	}

	if s.redis != nil && sessionID != "" {
		members, err := s.redis.SMembers(ctx, sessionKey(sessionID))
		if err != nil {
			logger.Log.Warn("Failed to read session favorites", zap.Error(err))
		} else {
			for _, id := range members {
				ids[id] = true
			}
		}
	}

	if len(ids) == 0 {
		return []models.Image{}, nil
	}

	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}

	var images []models.Image
	if err := s.db.WithContext(ctx).
		Where("id IN ?", idList).
		Order("created_at DESC").
		Find(&images).Error; err != nil {
		return nil, err
	}
	return images, nil
}

// Merge reconciles the tiers after sign-in: session favorites become
// favorites rows, and the user's rows are written back into the session
// set so both tiers hold the union.
func (s *Service) Merge(ctx context.Context, sessionID, userID string) error {
	if userID == "" {
		return nil
	}
	if s.redis == nil || sessionID == "" {
		return nil
	}

	key := sessionKey(sessionID)
	members, err := s.redis.SMembers(ctx, key)
	if err != nil {
		return err
	}

	for _, imageID := range members {
		var image models.Image
		err := s.db.WithContext(ctx).Select("id").First(&image, "id = ?", imageID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Stale session entry, drop it
			if remErr := s.redis.SRem(ctx, key, imageID); remErr != nil {
				logger.Log.Warn("Failed to prune stale session favorite", zap.Error(remErr))
			}
			continue
		}
		if err != nil {
			return err
		}

		fav := models.Favorite{UserID: userID, ImageID: imageID}
		if err := s.db.WithContext(ctx).
			Where("user_id = ? AND image_id = ?", userID, imageID).
			FirstOrCreate(&fav).Error; err != nil {
			return err
		}
	}

	var rowIDs []string
	if err := s.db.WithContext(ctx).
		Model(&models.Favorite{}).
		Where("user_id = ?", userID).
		Pluck("image_id", &rowIDs).Error; err != nil {
		return err
	}
	for _, id := range rowIDs {
		if err := s.redis.SAdd(ctx, key, id); err != nil {
			return err
		}
	}
	if len(rowIDs) > 0 {
		if err := s.redis.Expire(ctx, key, sessionTTL); err != nil {
			logger.Log.Warn("Failed to refresh session favorites TTL", zap.Error(err))
		}
	}

	return nil
}
