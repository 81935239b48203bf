package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/eldarg/pinboard/backend/internal/models"
	"gorm.io/gorm"
)

// Target is a tagged reference to the entity an action is about. The
// zero value means "no target". Construct through NoTarget, UserTarget,
// ImageTarget or CommentTarget so the kind and id always agree.
type Target struct {
	Kind models.TargetKind
	ID   string
}

// NoTarget returns the empty target
func NoTarget() Target {
	return Target{}
}

// UserTarget points an action at a user
func UserTarget(id string) Target {
	return Target{Kind: models.TargetUser, ID: id}
}

// ImageTarget points an action at an image
func ImageTarget(id string) Target {
	return Target{Kind: models.TargetImage, ID: id}
}

// CommentTarget points an action at a comment
func CommentTarget(id string) Target {
	return Target{Kind: models.TargetComment, ID: id}
}

// IsZero reports whether the target is absent
func (t Target) IsZero() bool {
	return t.Kind == models.TargetNone
}

// ErrUnknownTargetKind is returned for a kind outside the closed set
var ErrUnknownTargetKind = errors.New("unknown target kind")

// validate checks that the reference resolves to a live row. Actions
// are only written against live targets; after that the reference is
// weak and resolution may fail on read without being an error.
func (t Target) validate(ctx context.Context, db *gorm.DB) error {
	if t.IsZero() {
		return nil
	}

	var err error
	switch t.Kind {
	case models.TargetUser:
		err = db.WithContext(ctx).Select("id").First(&models.User{}, "id = ?", t.ID).Error
	case models.TargetImage:
		err = db.WithContext(ctx).Select("id").First(&models.Image{}, "id = ?", t.ID).Error
	case models.TargetComment:
		err = db.WithContext(ctx).Select("id").First(&models.Comment{}, "id = ?", t.ID).Error
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTargetKind, t.Kind)
	}

	if err != nil {
		return fmt.Errorf("target %s/%s does not resolve: %w", t.Kind, t.ID, err)
	}
	return nil
}
