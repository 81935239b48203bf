package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/eldarg/pinboard/backend/internal/errors"
	"github.com/eldarg/pinboard/backend/internal/favorites"
)

// AddFavorite flags an image for the visitor. Works for anonymous
// sessions and signed-in users alike.
func (h *Handlers) AddFavorite(c *gin.Context) {
	imageID := c.Param("id")
	userID := c.GetString("user_id")
	session := sessionID(c)

	if userID == "" && session == "" {
		abortWith(c, apierrors.BadRequest("no session"))
		return
	}

	if err := h.favorites.Add(c.Request.Context(), session, userID, imageID); err != nil {
		if errors.Is(err, favorites.ErrImageNotFound) {
			abortWith(c, apierrors.NotFound("image"))
			return
		}
		abortWith(c, apierrors.InternalError("failed to save favorite"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"favorited": true, "image_id": imageID})
}

// RemoveFavorite clears the flag
func (h *Handlers) RemoveFavorite(c *gin.Context) {
	imageID := c.Param("id")

	if err := h.favorites.Remove(c.Request.Context(), sessionID(c), c.GetString("user_id"), imageID); err != nil {
		abortWith(c, apierrors.InternalError("failed to remove favorite"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"favorited": false, "image_id": imageID})
}

// ListFavorites returns the visitor's favorite images
func (h *Handlers) ListFavorites(c *gin.Context) {
	images, err := h.favorites.List(c.Request.Context(), sessionID(c), c.GetString("user_id"))
	if err != nil {
		abortWith(c, apierrors.InternalError("failed to list favorites"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": images, "count": len(images)})
}

// MergeFavorites reconciles a session's favorites into the signed-in
// account. The auth client calls this right after sign-in.
func (h *Handlers) MergeFavorites(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.favorites.Merge(c.Request.Context(), sessionID(c), user.ID); err != nil {
		abortWith(c, apierrors.InternalError("failed to merge favorites"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"merged": true})
}
