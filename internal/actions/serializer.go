package actions

import (
	"context"
	"time"

	"github.com/eldarg/pinboard/backend/internal/models"
)

// ActorSummary is the compact actor representation embedded in a feed entry
type ActorSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// FeedEntry is the wire shape of one action. TargetObject is omitted
// entirely when the target no longer resolves; a dangling reference is
// not an error.
type FeedEntry struct {
	ID           string       `json:"id"`
	Actor        ActorSummary `json:"actor"`
	Verb         string       `json:"verb"`
	TargetObject interface{}  `json:"target_object,omitempty"`
	Created      time.Time    `json:"created"`
}

// Serialize resolves targets and builds feed entries. Resolution is
// batched per kind: one query for the users, one for the images, one
// for the comments referenced by the page.
func (s *Service) Serialize(ctx context.Context, records []models.Action) ([]FeedEntry, error) {
	idsByKind := map[models.TargetKind][]string{}
	for _, a := range records {
		if a.TargetKind != models.TargetNone && a.TargetID != "" {
			idsByKind[a.TargetKind] = append(idsByKind[a.TargetKind], a.TargetID)
		}
	}

	users := map[string]models.User{}
	images := map[string]models.Image{}
	comments := map[string]models.Comment{}

	db := s.db.WithContext(ctx)

	if ids := idsByKind[models.TargetUser]; len(ids) > 0 {
		var rows []models.User
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, u := range rows {
			users[u.ID] = u
		}
	}
	if ids := idsByKind[models.TargetImage]; len(ids) > 0 {
		var rows []models.Image
		if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, img := range rows {
			images[img.ID] = img
		}
	}
	if ids := idsByKind[models.TargetComment]; len(ids) > 0 {
		var rows []models.Comment
		if err := db.Preload("Image").Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, c := range rows {
			comments[c.ID] = c
		}
	}

	entries := make([]FeedEntry, 0, len(records))
	for _, a := range records {
		entry := FeedEntry{
			ID:   a.ID,
			Verb: a.Verb,
			Actor: ActorSummary{
				ID:          a.Actor.ID,
				Username:    a.Actor.Username,
				DisplayName: a.Actor.DisplayName,
				PhotoURL:    a.Actor.PhotoURL,
			},
			Created: a.CreatedAt,
		}

		switch a.TargetKind {
		case models.TargetUser:
			if u, ok := users[a.TargetID]; ok {
				entry.TargetObject = targetUser(u)
			}
		case models.TargetImage:
			if img, ok := images[a.TargetID]; ok {
				entry.TargetObject = targetImage(img)
			}
		case models.TargetComment:
			if c, ok := comments[a.TargetID]; ok {
				entry.TargetObject = targetComment(c)
			}
		case models.TargetNone:
			// no target
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

// Wire shapes per target kind. One constructor per variant keeps the
// switch above exhaustive and the JSON stable.

type userTarget struct {
	Kind     models.TargetKind `json:"kind"`
	ID       string            `json:"id"`
	Username string            `json:"username"`
	PhotoURL string            `json:"photo_url,omitempty"`
}

func targetUser(u models.User) userTarget {
	return userTarget{Kind: models.TargetUser, ID: u.ID, Username: u.Username, PhotoURL: u.PhotoURL}
}

type imageTarget struct {
	Kind  models.TargetKind `json:"kind"`
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Slug  string            `json:"slug"`
	Path  string            `json:"path"`
}

func targetImage(img models.Image) imageTarget {
	return imageTarget{Kind: models.TargetImage, ID: img.ID, Title: img.Title, Slug: img.Slug, Path: img.Path}
}

type commentTarget struct {
	Kind      models.TargetKind `json:"kind"`
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	ImageID   string            `json:"image_id"`
	ImagePath string            `json:"image_path,omitempty"`
}

func targetComment(c models.Comment) commentTarget {
	return commentTarget{
		Kind:      models.TargetComment,
		ID:        c.ID,
		Text:      c.Text,
		ImageID:   c.ImageID,
		ImagePath: c.Image.Path,
	}
}
