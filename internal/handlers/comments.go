package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/actions"
	apierrors "github.com/eldarg/pinboard/backend/internal/errors"
	"github.com/eldarg/pinboard/backend/internal/metrics"
	"github.com/eldarg/pinboard/backend/internal/models"
)

// CreateComment adds a comment to an image
func (h *Handlers) CreateComment(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	imageID := c.Param("id")

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, apierrors.ValidationError("text", "comment text is required"))
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		abortWith(c, apierrors.ValidationError("text", "comment text is required"))
		return
	}

	var image models.Image
	if err := h.db.First(&image, "id = ?", imageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to comment"))
		return
	}

	comment := &models.Comment{
		ImageID: image.ID,
		OwnerID: user.ID,
		Text:    text,
	}
	if err := h.db.Create(comment).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to comment"))
		return
	}

	h.actions.Record(c.Request.Context(), user.ID, models.VerbCommented, actions.CommentTarget(comment.ID))
	metrics.Get().ActionsRecorded.WithLabelValues(models.VerbCommented).Inc()

	c.JSON(http.StatusCreated, comment)
}

// ListComments returns the active comments on an image, oldest first
func (h *Handlers) ListComments(c *gin.Context) {
	imageID := c.Param("id")

	var comments []models.Comment
	if err := h.db.Preload("Owner").
		Where("image_id = ? AND active = ?", imageID, true).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to list comments"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": comments, "count": len(comments)})
}

// DeleteComment removes a comment. Only the author or the image owner
// may delete it.
func (h *Handlers) DeleteComment(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	commentID := c.Param("id")

	var comment models.Comment
	if err := h.db.Preload("Image").First(&comment, "id = ?", commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			abortWith(c, apierrors.NotFound("comment"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to delete comment"))
		return
	}

	if comment.OwnerID != user.ID && comment.Image.OwnerID != user.ID {
		abortWith(c, apierrors.Forbidden("not your comment"))
		return
	}

	if err := h.db.Delete(&comment).Error; err != nil {
		abortWith(c, apierrors.InternalError("failed to delete comment"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true, "comment_id": commentID})
}
