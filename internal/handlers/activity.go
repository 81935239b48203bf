package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eldarg/pinboard/backend/internal/actions"
	apierrors "github.com/eldarg/pinboard/backend/internal/errors"
	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/metrics"
	"go.uber.org/zap"
)

// GetActivity returns the authenticated user's activity feed
func (h *Handlers) GetActivity(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	opts := actions.FeedOptions{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
	}

	if raw := c.Query("created_after"); raw != "" {
		ts, err := parseTime(raw)
		if err != nil {
			abortWith(c, apierrors.ValidationError("created_after", "must be an RFC 3339 timestamp"))
			return
		}
		opts.CreatedAfter = &ts
	}
	if raw := c.Query("created_before"); raw != "" {
		ts, err := parseTime(raw)
		if err != nil {
			abortWith(c, apierrors.ValidationError("created_before", "must be an RFC 3339 timestamp"))
			return
		}
		opts.CreatedBefore = &ts
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWith(c, apierrors.ValidationError("limit", "must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			abortWith(c, apierrors.ValidationError("offset", "must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}

	start := time.Now()
	records, err := h.actions.Feed(c.Request.Context(), user.ID, opts)
	if err != nil {
		metrics.Get().FeedQueriesTotal.WithLabelValues("error").Inc()
		logger.Log.Error("feed query failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWith(c, apierrors.InternalError("failed to load activity"))
		return
	}
	metrics.Get().FeedQueriesTotal.WithLabelValues("ok").Inc()
	metrics.Get().FeedQueryDuration.Observe(time.Since(start).Seconds())

	entries, err := h.actions.Serialize(c.Request.Context(), records)
	if err != nil {
		logger.Log.Error("feed serialization failed", zap.String("user_id", user.ID), zap.Error(err))
		abortWith(c, apierrors.InternalError("failed to load activity"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": entries,
		"count":   len(entries),
		"offset":  opts.Offset,
	})
}

// parseTime accepts RFC 3339 or a bare date
func parseTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", raw)
}
