package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/actions"
	apierrors "github.com/eldarg/pinboard/backend/internal/errors"
	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/metrics"
	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/eldarg/pinboard/backend/internal/queue"
	"github.com/eldarg/pinboard/backend/internal/thumbnail"
	"go.uber.org/zap"
)

const maxUploadBytes = 20 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// CreateImage uploads a photo. The original is written to the media
// store, the posting is announced to followers, and thumbnail and tag
// jobs run in the background. The response never waits for any of the
// jobs.
func (h *Handlers) CreateImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	title := c.PostForm("title")
	if strings.TrimSpace(title) == "" {
		abortWith(c, apierrors.ValidationError("title", "title is required"))
		return
	}
	description := c.PostForm("description")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		abortWith(c, apierrors.ValidationError("file", "an image file is required"))
		return
	}
	if fileHeader.Size > maxUploadBytes {
		abortWith(c, apierrors.ValidationError("file", "image exceeds the 20MB limit"))
		return
	}

	ext := strings.ToLower(path.Ext(fileHeader.Filename))
	if !allowedImageExts[ext] {
		abortWith(c, apierrors.ValidationError("file", "unsupported image format"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortWith(c, apierrors.InternalError("failed to read upload"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		abortWith(c, apierrors.InternalError("failed to read upload"))
		return
	}

	image := &models.Image{
		OwnerID:     user.ID,
		Title:       title,
		Description: description,
	}
	if raw := c.PostForm("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if t := strings.TrimSpace(tag); t != "" {
				image.Tags = append(image.Tags, t)
			}
		}
	}
	if categoryID := c.PostForm("category_id"); categoryID != "" {
		var category models.Category
		if err := h.db.First(&category, "id = ?", categoryID).Error; err != nil {
			abortWith(c, apierrors.ValidationError("category_id", "unknown category"))
			return
		}
		image.CategoryID = &category.ID
	}

	key := fmt.Sprintf("images/%s%s", uuid.New().String(), ext)
	if err := h.store.Write(c.Request.Context(), key, data, thumbnail.ContentType(ext)); err != nil {
		logger.Log.Error("failed to store upload", zap.String("key", key), zap.Error(err))
		abortWith(c, apierrors.InternalError("failed to store image"))
		return
	}
	image.Path = key

	if err := h.db.Create(image).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to save image"))
		return
	}

	h.actions.Record(c.Request.Context(), user.ID, models.VerbPosted, actions.ImageTarget(image.ID))
	metrics.Get().ActionsRecorded.WithLabelValues(models.VerbPosted).Inc()

	h.enqueueImageJobs(c, image, user)

	c.JSON(http.StatusCreated, image)
}

// enqueueImageJobs declares the post-upload background work. Enqueue
// failures are logged; the upload already succeeded.
func (h *Handlers) enqueueImageJobs(c *gin.Context, image *models.Image, user *models.User) {
	ctx := c.Request.Context()

	if _, err := h.dispatcher.Enqueue(ctx, queue.KindFanOutPostNotifications, queue.FanOutPayload{
		ImageID: image.ID,
		UserID:  user.ID,
	}); err != nil {
		logger.Log.Error("failed to enqueue fan-out", zap.String("image_id", image.ID), zap.Error(err))
	}

	if _, err := h.dispatcher.Enqueue(ctx, queue.KindGenerateThumbnail, queue.ThumbnailPayload{
		Path: image.Path,
	}); err != nil {
		logger.Log.Error("failed to enqueue thumbnail", zap.String("image_id", image.ID), zap.Error(err))
	}

	// Only infer tags when the poster supplied none
	if len(image.Tags) == 0 {
		if _, err := h.dispatcher.Enqueue(ctx, queue.KindInferTags, queue.InferTagsPayload{
			ImageID: image.ID,
			Path:    image.Path,
		}); err != nil {
			logger.Log.Error("failed to enqueue tag inference", zap.String("image_id", image.ID), zap.Error(err))
		}
	}
}

// DeleteImage removes an image and everything hanging off it. Owner
// only. The original and its thumbnail are removed from the media store
// after the rows are gone; missing files are not an error.
func (h *Handlers) DeleteImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID := c.Param("id")

	var image models.Image
	if err := h.db.First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to load image"))
		return
	}

	if image.OwnerID != user.ID {
		abortWith(c, apierrors.Forbidden("only the owner can delete an image"))
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ?", image.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("image_id = ?", image.ID).Delete(&models.Favorite{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM image_likes WHERE image_id = ?", image.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&image).Error
	})
	if err != nil {
		abortWith(c, apierrors.InternalError("failed to delete image"))
		return
	}

	ctx := c.Request.Context()
	if err := h.store.Delete(ctx, image.Path); err != nil {
		logger.Log.Warn("failed to delete image file", zap.String("path", image.Path), zap.Error(err))
	}
	if err := h.store.Delete(ctx, thumbnail.Path(image.Path)); err != nil {
		logger.Log.Warn("failed to delete thumbnail file", zap.String("path", image.Path), zap.Error(err))
	}

	c.Status(http.StatusNoContent)
}

// ListImages returns images, newest first
func (h *Handlers) ListImages(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	q := h.db.Model(&models.Image{}).Preload("Owner").Order("created_at DESC")
	if ownerID := c.Query("owner_id"); ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	if tag := c.Query("tag"); tag != "" {
		// Tags are stored as a JSON array
		q = q.Where("tags LIKE ?", "%\""+tag+"\"%")
	}

	var images []models.Image
	if err := q.Limit(limit).Offset(offset).Find(&images).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to list images"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": images, "count": len(images), "offset": offset})
}

// GetImage returns one image and counts the view
func (h *Handlers) GetImage(c *gin.Context) {
	imageID := c.Param("id")

	var image models.Image
	if err := h.db.Preload("Owner").Preload("Category").First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to load image"))
		return
	}

	total, err := h.views.Hit(c.Request.Context(), image.ID)
	if err != nil {
		logger.Log.Warn("failed to count view", zap.String("image_id", image.ID), zap.Error(err))
		total = image.Views
	}
	image.Views = total

	c.JSON(http.StatusOK, gin.H{
		"image":          image,
		"total_views":    total,
		"thumbnail_path": thumbnail.Path(image.Path),
	})
}

// MostPopular returns the most viewed recent images
func (h *Handlers) MostPopular(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}

	images, err := h.views.MostPopular(c.Request.Context(), limit)
	if err != nil {
		abortWith(c, apierrors.InternalError("failed to load popular images"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": images, "count": len(images)})
}

// LikeImage records a like. Liking twice is a no-op.
func (h *Handlers) LikeImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID := c.Param("id")

	var image models.Image
	if err := h.db.First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to like image"))
		return
	}

	var already int64
	if err := h.db.Table("image_likes").
		Where("image_id = ? AND user_id = ?", image.ID, user.ID).
		Count(&already).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to like image"))
		return
	}

	if already == 0 {
		if err := h.db.Model(&image).Association("UsersLike").Append(user); err != nil {
			abortWith(c, apierrors.InternalError("failed to like image"))
			return
		}
		if err := h.db.Model(&models.Image{}).Where("id = ?", image.ID).
			UpdateColumn("total_likes", gorm.Expr("total_likes + 1")).Error; err != nil {
			logger.Log.Warn("failed to bump like counter", zap.String("image_id", image.ID), zap.Error(err))
		}

		h.actions.Record(c.Request.Context(), user.ID, models.VerbLiked, actions.ImageTarget(image.ID))
		metrics.Get().ActionsRecorded.WithLabelValues(models.VerbLiked).Inc()
	}

	c.JSON(http.StatusOK, gin.H{"liked": true, "image_id": image.ID})
}

// UnlikeImage removes a like. No action is recorded.
func (h *Handlers) UnlikeImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID := c.Param("id")

	var image models.Image
	if err := h.db.First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to unlike image"))
		return
	}

	var liked int64
	if err := h.db.Table("image_likes").
		Where("image_id = ? AND user_id = ?", image.ID, user.ID).
		Count(&liked).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to unlike image"))
		return
	}

	if liked > 0 {
		if err := h.db.Model(&image).Association("UsersLike").Delete(user); err != nil {
			abortWith(c, apierrors.InternalError("failed to unlike image"))
			return
		}
		if err := h.db.Model(&models.Image{}).Where("id = ? AND total_likes > 0", image.ID).
			UpdateColumn("total_likes", gorm.Expr("total_likes - 1")).Error; err != nil {
			logger.Log.Warn("failed to drop like counter", zap.String("image_id", image.ID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"liked": false, "image_id": image.ID})
}

// UsersLike lists who liked the image. For a signed-in viewer the
// accounts they follow come first.
func (h *Handlers) UsersLike(c *gin.Context) {
	imageID := c.Param("id")

	var image models.Image
	if err := h.db.First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to load image"))
		return
	}

	var likers []models.User
	if err := h.db.
		Joins("JOIN image_likes ON image_likes.user_id = users.id").
		Where("image_likes.image_id = ?", image.ID).
		Find(&likers).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to list likes"))
		return
	}

	if viewer, ok := currentUser(c); ok && len(likers) > 1 {
		var followingIDs []string
		if err := h.db.Model(&models.Follow{}).
			Where("follower_id = ?", viewer.ID).
			Pluck("followed_id", &followingIDs).Error; err == nil {
			followed := make(map[string]bool, len(followingIDs))
			for _, id := range followingIDs {
				followed[id] = true
			}
			sortFollowedFirst(likers, followed)
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": likers, "count": len(likers)})
}

// sortFollowedFirst stably moves followed accounts to the front
func sortFollowedFirst(users []models.User, followed map[string]bool) {
	out := make([]models.User, 0, len(users))
	for _, u := range users {
		if followed[u.ID] {
			out = append(out, u)
		}
	}
	for _, u := range users {
		if !followed[u.ID] {
			out = append(out, u)
		}
	}
	copy(users, out)
}
