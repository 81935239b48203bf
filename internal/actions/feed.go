package actions

import (
	"context"
	"strings"
	"time"

	"github.com/eldarg/pinboard/backend/internal/models"
)

// FeedOptions are the caller-controlled knobs on a feed read
type FeedOptions struct {
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	// Search matches case-insensitively against actor username and verb
	Search string
	// Ordering is "created" or "-created" (default)
	Ordering string
	Limit    int
	Offset   int
}

const (
	defaultFeedLimit = 20
	maxFeedLimit     = 100
)

// Feed returns the actions visible to userID, newest first by default.
//
// A record is visible when it matches at least one of four disjuncts:
// someone followed userID; someone commented on one of userID's images;
// someone liked one of userID's images; someone userID follows posted
// an image. The user's own actions never appear.
//
// The target reference is polymorphic, so disjuncts two and three
// cannot be expressed as a join across entity tables. Instead the
// candidate id sets (owned images, comments on owned images, followed
// accounts) are materialized first and the actions table is filtered
// with membership predicates.
func (s *Service) Feed(ctx context.Context, userID string, opts FeedOptions) ([]models.Action, error) {
	db := s.db.WithContext(ctx)

	var imageIDs []string
	if err := db.Model(&models.Image{}).
		Where("owner_id = ?", userID).
		Pluck("id", &imageIDs).Error; err != nil {
		return nil, err
	}

	var commentIDs []string
	if err := db.Model(&models.Comment{}).
		Joins("JOIN images ON images.id = comments.image_id").
		Where("images.owner_id = ?", userID).
		Pluck("comments.id", &commentIDs).Error; err != nil {
		return nil, err
	}

	var followingIDs []string
	if err := db.Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("followed_id", &followingIDs).Error; err != nil {
		return nil, err
	}

	membership := s.db.
		Where("LOWER(verb) = ? AND target_kind = ? AND target_id = ?",
			models.VerbFollowed, models.TargetUser, userID).
		Or("LOWER(verb) = ? AND target_kind = ? AND target_id IN ?",
			models.VerbCommented, models.TargetComment, emptySafe(commentIDs)).
		Or("LOWER(verb) = ? AND target_kind = ? AND target_id IN ?",
			models.VerbLiked, models.TargetImage, emptySafe(imageIDs)).
		Or("LOWER(verb) = ? AND target_kind = ? AND actor_id IN ?",
			models.VerbPosted, models.TargetImage, emptySafe(followingIDs))

	q := db.Model(&models.Action{}).
		Where("actor_id <> ?", userID).
		Where(membership)

	if opts.CreatedAfter != nil {
		q = q.Where("actions.created_at >= ?", *opts.CreatedAfter)
	}
	if opts.CreatedBefore != nil {
		q = q.Where("actions.created_at <= ?", *opts.CreatedBefore)
	}

	if opts.Search != "" {
		pattern := "%" + strings.ToLower(opts.Search) + "%"
		q = q.Where("LOWER(verb) LIKE ? OR actor_id IN (?)",
			pattern,
			s.db.Model(&models.User{}).Select("id").Where("LOWER(username) LIKE ?", pattern),
		)
	}

	// Secondary order on id keeps pagination stable across records
	// created in the same instant.
	switch opts.Ordering {
	case "created":
		q = q.Order("actions.created_at ASC").Order("actions.id ASC")
	default:
		q = q.Order("actions.created_at DESC").Order("actions.id DESC")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}
	q = q.Limit(limit)
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var results []models.Action
	if err := q.Preload("Actor").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// emptySafe keeps an empty id set as a predicate that matches nothing
// instead of invalid SQL.
func emptySafe(ids []string) []string {
	if len(ids) == 0 {
		return []string{""}
	}
	return ids
}
