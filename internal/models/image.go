package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category groups images by topic
type Category struct {
	ID   string `gorm:"primaryKey;type:uuid" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

// BeforeCreate assigns a UUID if none was provided
func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Image represents an uploaded photo. The bytes live in the media store
// (local disk or S3); Path is the storage key of the original, and the
// thumbnail sits alongside it at <name>_thumbnail<ext>.
type Image struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID string `gorm:"not null;index" json:"owner_id"`
	Owner   User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"owner,omitempty"`

	CategoryID *string   `gorm:"index" json:"category_id,omitempty"`
	Category   *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`

	Title       string `gorm:"not null" json:"title"`
	Slug        string `gorm:"index" json:"slug"`
	Path        string `gorm:"not null" json:"path"`
	Description string `gorm:"type:text" json:"description"`

	Tags StringArray `gorm:"serializer:json" json:"tags"`

	// Denormalized counters. TotalLikes is maintained on like/unlike;
	// Views is flushed from the redis counter.
	TotalLikes int   `gorm:"default:0" json:"total_likes"`
	Views      int64 `gorm:"default:0" json:"views"`

	UsersLike []User `gorm:"many2many:image_likes" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID and derives the slug from the title
func (i *Image) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.Slug == "" {
		i.Slug = Slugify(i.Title)
	}
	return nil
}

// Slugify converts a title into a URL-safe slug
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Comment is a user comment on an image
type Comment struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	ImageID string `gorm:"not null;index" json:"image_id"`
	Image   Image  `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE" json:"-"`

	OwnerID string `gorm:"not null;index" json:"owner_id"`
	Owner   User   `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"owner,omitempty"`

	Text   string `gorm:"type:text" json:"text"`
	Active bool   `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID if none was provided
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Favorite is the persistent tier of the two-tier favorites store.
// The transient tier lives in redis keyed by session.
type Favorite struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID  string `gorm:"not null;index;uniqueIndex:idx_favorites_pair" json:"user_id"`
	ImageID string `gorm:"not null;uniqueIndex:idx_favorites_pair" json:"image_id"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID if none was provided
func (f *Favorite) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return nil
}
