package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/actions"
	apierrors "github.com/eldarg/pinboard/backend/internal/errors"
	"github.com/eldarg/pinboard/backend/internal/metrics"
	"github.com/eldarg/pinboard/backend/internal/models"
)

// FollowUser creates a follow edge from the authenticated user to :id
func (h *Handlers) FollowUser(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	if targetID == user.ID {
		abortWith(c, apierrors.BadRequest("cannot follow yourself"))
		return
	}

	var target models.User
	if err := h.db.First(&target, "id = ?", targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("user"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to follow user"))
		return
	}

	edge := models.Follow{FollowerID: user.ID, FollowedID: target.ID}
	res := h.db.Where("follower_id = ? AND followed_id = ?", user.ID, target.ID).FirstOrCreate(&edge)
	if res.Error != nil {
		abortWith(c, apierrors.InternalError("failed to follow user"))
		return
	}

	if res.RowsAffected > 0 {
		h.actions.Record(c.Request.Context(), user.ID, models.VerbFollowed, actions.UserTarget(target.ID))
		metrics.Get().ActionsRecorded.WithLabelValues(models.VerbFollowed).Inc()
	}

	c.JSON(http.StatusOK, gin.H{"following": true, "user_id": target.ID})
}

// UnfollowUser removes the follow edge. No action is recorded; the feed
// only announces new connections.
func (h *Handlers) UnfollowUser(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	if err := h.db.
		Where("follower_id = ? AND followed_id = ?", user.ID, targetID).
		Delete(&models.Follow{}).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to unfollow user"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"following": false, "user_id": targetID})
}

// GetFollowers lists the accounts following :id
func (h *Handlers) GetFollowers(c *gin.Context) {
	h.listConnections(c,
		"JOIN follows ON follows.follower_id = users.id",
		"follows.followed_id = ?")
}

// GetFollowings lists the accounts :id follows
func (h *Handlers) GetFollowings(c *gin.Context) {
	h.listConnections(c,
		"JOIN follows ON follows.followed_id = users.id",
		"follows.follower_id = ?")
}

// LikedImages lists the images :id has liked. Owners always see their
// own list; anyone else needs the profile's open-liked-images flag on
// plus a mutual follow with the owner.
func (h *Handlers) LikedImages(c *gin.Context) {
	viewer, ok := requireUser(c)
	if !ok {
		return
	}

	var target models.User
	if err := h.db.First(&target, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("user"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to load user"))
		return
	}

	if target.ID != viewer.ID {
		if !target.OpenLikedImages || !h.isMutualFollow(viewer.ID, target.ID) {
			abortWith(c, apierrors.Forbidden("liked images are not visible to you"))
			return
		}
	}

	var images []models.Image
	if err := h.db.
		Joins("JOIN image_likes ON image_likes.image_id = images.id").
		Where("image_likes.user_id = ?", target.ID).
		Preload("Owner").
		Order("images.created_at DESC").
		Find(&images).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to list liked images"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": images, "count": len(images)})
}

// isMutualFollow reports whether both follow edges exist
func (h *Handlers) isMutualFollow(a, b string) bool {
	var count int64
	err := h.db.Model(&models.Follow{}).
		Where("(follower_id = ? AND followed_id = ?) OR (follower_id = ? AND followed_id = ?)", a, b, b, a).
		Count(&count).Error
	return err == nil && count == 2
}

func (h *Handlers) listConnections(c *gin.Context, join, where string) {
	userID := c.Param("id")

	var exists int64
	if err := h.db.Model(&models.User{}).Where("id = ?", userID).Count(&exists).Error; err != nil || exists == 0 {
		abortWith(c, apierrors.NotFound("user"))
		return
	}

	var users []models.User
	if err := h.db.
		Joins(join).
		Where(where, userID).
		Order("follows.created_at DESC").
		Find(&users).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to list users"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": users, "count": len(users)})
}
