package actions

import (
	"context"

	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the activity log: mutating workflows append to it through
// Record, the feed endpoint reads from it through Feed, and the
// retention sweeper trims it through Purge.
type Service struct {
	db *gorm.DB
}

// NewService creates an action service on the given database
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record appends one action on behalf of actorID. It is best-effort:
// the caller just performed the real mutation (follow, like, comment,
// post) and a lost feed entry must never roll that back, so failures
// are logged and swallowed.
func (s *Service) Record(ctx context.Context, actorID, verb string, target Target) {
	if _, err := s.Append(ctx, actorID, verb, target); err != nil {
		logger.Log.Error("failed to record action",
			zap.String("actor_id", actorID),
			zap.String("verb", verb),
			zap.String("target_kind", string(target.Kind)),
			zap.String("target_id", target.ID),
			zap.Error(err),
		)
	}
}

// Append writes one action and returns it. Unlike Record it surfaces
// the error; use it when the caller wants to know.
func (s *Service) Append(ctx context.Context, actorID, verb string, target Target) (*models.Action, error) {
	if err := target.validate(ctx, s.db); err != nil {
		return nil, err
	}

	action := &models.Action{
		ActorID:    actorID,
		Verb:       verb,
		TargetKind: target.Kind,
		TargetID:   target.ID,
	}
	if err := s.db.WithContext(ctx).Create(action).Error; err != nil {
		return nil, err
	}
	return action, nil
}
