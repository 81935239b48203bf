package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/actions"
	apierrors "github.com/eldarg/pinboard/backend/internal/errors"
	"github.com/eldarg/pinboard/backend/internal/favorites"
	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/eldarg/pinboard/backend/internal/queue"
	"github.com/eldarg/pinboard/backend/internal/storage"
	"github.com/eldarg/pinboard/backend/internal/views"
)

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	db         *gorm.DB
	actions    *actions.Service
	favorites  *favorites.Service
	views      *views.Counter
	dispatcher *queue.Dispatcher
	store      storage.Storage
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, actionSvc *actions.Service, favoriteSvc *favorites.Service, viewCounter *views.Counter, dispatcher *queue.Dispatcher, store storage.Storage) *Handlers {
	return &Handlers{
		db:         db,
		actions:    actionSvc,
		favorites:  favoriteSvc,
		views:      viewCounter,
		dispatcher: dispatcher,
		store:      store,
	}
}

// currentUser returns the authenticated user set by the auth middleware
func currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// sessionID returns the visitor's session id, if the session middleware ran
func sessionID(c *gin.Context) string {
	return c.GetString("session_id")
}

// abortWith writes a standardized error response
func abortWith(c *gin.Context, err *apierrors.APIError) {
	c.AbortWithStatusJSON(err.Status, gin.H{"error": err})
}

// requireUser fetches the authenticated user or aborts with 401
func requireUser(c *gin.Context) (*models.User, bool) {
	user, ok := currentUser(c)
	if !ok {
		abortWith(c, apierrors.Unauthorized("authentication required"))
		return nil, false
	}
	return user, true
}

// Health reports liveness
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
