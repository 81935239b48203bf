package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TargetKind tags the entity type an action points at
type TargetKind string

const (
	TargetNone    TargetKind = ""
	TargetUser    TargetKind = "user"
	TargetImage   TargetKind = "image"
	TargetComment TargetKind = "comment"
)

// Verbs with feed semantics. The column is an open string; only these
// four participate in feed membership.
const (
	VerbFollowed  = "followed"
	VerbLiked     = "liked"
	VerbCommented = "commented"
	VerbPosted    = "posted"
)

// Action is one immutable activity record: actor did verb, optionally
// to a target. Rows are only ever inserted, purged by age, or removed
// by cascade when the actor is deleted. The target reference is weak:
// the pointed-at row may be gone by the time the action is read.
type Action struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	ActorID string `gorm:"not null;index" json:"actor_id"`
	Actor   User   `gorm:"foreignKey:ActorID;constraint:OnDelete:CASCADE" json:"actor,omitempty"`

	Verb string `gorm:"not null;index" json:"verb"`

	TargetKind TargetKind `gorm:"index:idx_actions_target" json:"target_kind,omitempty"`
	TargetID   string     `gorm:"index:idx_actions_target" json:"target_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created"`
}

// BeforeCreate assigns a UUID if none was provided
func (a *Action) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
