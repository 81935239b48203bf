package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StringArray is stored as a JSON-encoded array so it works across
// postgres and the sqlite driver used in tests.
type StringArray []string

// User represents a Pinboard account.
// Registration, login and password handling live in an external auth
// service; this backend only resolves users from bearer tokens.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `json:"display_name"`
	Bio         string `gorm:"type:text" json:"bio"`
	PhotoURL    string `json:"photo_url"`

	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`

	// Whether other users may see the images this user liked
	OpenLikedImages bool `gorm:"default:false" json:"open_liked_images"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns a UUID if none was provided
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Follow is one directed edge in the social graph
type Follow struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	FollowerID string `gorm:"not null;index;uniqueIndex:idx_follows_pair" json:"follower_id"`
	FollowedID string `gorm:"not null;index;uniqueIndex:idx_follows_pair" json:"followed_id"`

	Follower User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followed User `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate assigns a UUID if none was provided
func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}
