// Package seed fills a development database with plausible users,
// images, comments and activity.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/actions"
	"github.com/eldarg/pinboard/backend/internal/models"
)

// Seeder creates development data
type Seeder struct {
	db      *gorm.DB
	actions *actions.Service
}

// NewSeeder creates a seeder on the given database
func NewSeeder(db *gorm.DB) *Seeder {
	_ = gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{db: db, actions: actions.NewService(db)}
}

var categoryNames = []string{"Travel", "Food", "Architecture", "Nature", "Art"}

// SeedDev populates users, a follow graph, categorized images with
// comments and likes, and the activity records those workflows would
// have produced.
func (s *Seeder) SeedDev(userCount, imagesPerUser int) error {
	ctx := context.Background()

	categories := make([]models.Category, 0, len(categoryNames))
	for _, name := range categoryNames {
		cat := models.Category{Name: name}
		if err := s.db.Where("name = ?", name).FirstOrCreate(&cat).Error; err != nil {
			return fmt.Errorf("seed category %s: %w", name, err)
		}
		categories = append(categories, cat)
	}

	users := make([]models.User, 0, userCount)
	for i := 0; i < userCount; i++ {
		user := models.User{
			Email:       gofakeit.Email(),
			Username:    fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), i),
			DisplayName: gofakeit.Name(),
			Bio:         gofakeit.HipsterSentence(),
		}
		if err := s.db.Create(&user).Error; err != nil {
			return fmt.Errorf("seed user: %w", err)
		}
		users = append(users, user)
	}

	// Everyone follows a handful of earlier accounts
	for i := 1; i < len(users); i++ {
		follows := gofakeit.Number(1, 3)
		for j := 0; j < follows && j < i; j++ {
			target := users[gofakeit.Number(0, i-1)]
			if target.ID == users[i].ID {
				continue
			}
			edge := models.Follow{FollowerID: users[i].ID, FollowedID: target.ID}
			res := s.db.Where("follower_id = ? AND followed_id = ?", edge.FollowerID, edge.FollowedID).
				FirstOrCreate(&edge)
			if res.Error != nil {
				return fmt.Errorf("seed follow: %w", res.Error)
			}
			if res.RowsAffected > 0 {
				s.actions.Record(ctx, users[i].ID, models.VerbFollowed, actions.UserTarget(target.ID))
			}
		}
	}

	for _, user := range users {
		for j := 0; j < imagesPerUser; j++ {
			category := categories[gofakeit.Number(0, len(categories)-1)]
			title := fmt.Sprintf("%s %s", gofakeit.HipsterWord(), gofakeit.HipsterWord())
			image := models.Image{
				OwnerID:     user.ID,
				CategoryID:  &category.ID,
				Title:       title,
				Description: gofakeit.HipsterSentence(),
				Path:        fmt.Sprintf("images/%s.jpg", models.Slugify(title)),
				Tags:        models.StringArray{gofakeit.HipsterWord(), gofakeit.HipsterWord()},
			}
			if err := s.db.Create(&image).Error; err != nil {
				return fmt.Errorf("seed image: %w", err)
			}
			s.actions.Record(ctx, user.ID, models.VerbPosted, actions.ImageTarget(image.ID))

			// A few likes and comments from random accounts
			for k := 0; k < gofakeit.Number(0, 3); k++ {
				other := users[gofakeit.Number(0, len(users)-1)]
				if other.ID == user.ID {
					continue
				}
				if err := s.db.Model(&image).Association("UsersLike").Append(&other); err != nil {
					return fmt.Errorf("seed like: %w", err)
				}
				s.actions.Record(ctx, other.ID, models.VerbLiked, actions.ImageTarget(image.ID))
			}
			for k := 0; k < gofakeit.Number(0, 2); k++ {
				other := users[gofakeit.Number(0, len(users)-1)]
				comment := models.Comment{
					ImageID: image.ID,
					OwnerID: other.ID,
					Text:    gofakeit.HipsterSentence(),
				}
				if err := s.db.Create(&comment).Error; err != nil {
					return fmt.Errorf("seed comment: %w", err)
				}
				s.actions.Record(ctx, other.ID, models.VerbCommented, actions.CommentTarget(comment.ID))
			}
		}
	}

	return nil
}

// Clean removes all rows from every table. Development only.
func (s *Seeder) Clean() error {
	tables := []interface{}{
		&models.Action{},
		&models.Favorite{},
		&models.Comment{},
		&models.Image{},
		&models.Follow{},
		&models.Category{},
		&models.JobRecord{},
		&models.ErrorReport{},
		&models.User{},
	}
	for _, table := range tables {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}
