package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/eldarg/pinboard/backend/internal/email"
	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/eldarg/pinboard/backend/internal/storage"
	"github.com/eldarg/pinboard/backend/internal/thumbnail"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Tagger predicts descriptive labels for image bytes
type Tagger interface {
	PredictTags(ctx context.Context, filename string, data []byte) ([]string, error)
}

// FanOutPayload asks for post notifications to every follower of the poster
type FanOutPayload struct {
	ImageID string `json:"image_id"`
	UserID  string `json:"user_id"`
}

// EmailPayload is one notification email
type EmailPayload struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Recipient string `json:"recipient"`
}

// ThumbnailPayload asks for a thumbnail of the stored original
type ThumbnailPayload struct {
	Path string `json:"path"`
}

// InferTagsPayload asks the classifier to label an untagged image
type InferTagsPayload struct {
	ImageID string `json:"image_id"`
	Path    string `json:"path"`
}

// Jobs binds the job kinds to their collaborators: the database, the
// mail transport, the media store and the classification service.
type Jobs struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	mailer     email.Sender
	store      storage.Storage
	tagger     Tagger
	siteURL    string
}

// NewJobs creates the job handler set
func NewJobs(db *gorm.DB, mailer email.Sender, store storage.Storage, tagger Tagger, siteURL string) *Jobs {
	return &Jobs{
		db:      db,
		mailer:  mailer,
		store:   store,
		tagger:  tagger,
		siteURL: siteURL,
	}
}

// Register installs all handlers on the dispatcher. The dispatcher
// reference is kept so the fan-out handler can enqueue child jobs.
func (j *Jobs) Register(d *Dispatcher) {
	j.dispatcher = d
	d.Register(KindFanOutPostNotifications, j.HandleFanOut)
	d.Register(KindSendNotificationEmail, j.HandleSendEmail)
	d.Register(KindGenerateThumbnail, j.HandleGenerateThumbnail)
	d.Register(KindInferTags, j.HandleInferTags)
}

// HandleFanOut resolves the poster's followers and enqueues one email
// job per follower. Zero followers is a no-op. Child jobs are only
// enqueued once this job is running, never before.
func (j *Jobs) HandleFanOut(ctx context.Context, payload json.RawMessage) error {
	var p FanOutPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.ImageID == "" || p.UserID == "" {
		return fmt.Errorf("%w: image_id and user_id are required", ErrMalformedPayload)
	}

	var image models.Image
	if err := j.db.WithContext(ctx).First(&image, "id = ?", p.ImageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: image %s", ErrMissingDependency, p.ImageID)
		}
		return err
	}

	var poster models.User
	if err := j.db.WithContext(ctx).First(&poster, "id = ?", p.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %s", ErrMissingDependency, p.UserID)
		}
		return err
	}

	var followers []models.User
	if err := j.db.WithContext(ctx).
		Joins("JOIN follows ON follows.follower_id = users.id").
		Where("follows.followed_id = ?", poster.ID).
		Find(&followers).Error; err != nil {
		return err
	}

	subject := fmt.Sprintf("%s posted a new image", poster.Username)
	body := fmt.Sprintf("Link to image %q: %s/images/%s", image.Title, j.siteURL, image.ID)

	for _, follower := range followers {
		if _, err := j.dispatcher.Enqueue(ctx, KindSendNotificationEmail, EmailPayload{
			Subject:   subject,
			Body:      body,
			Recipient: follower.Email,
		}); err != nil {
			return fmt.Errorf("enqueue notification for %s: %w", follower.ID, err)
		}
	}

	logger.Log.Info("Post notifications fanned out",
		zap.String("image_id", image.ID),
		zap.String("user_id", poster.ID),
		zap.Int("followers", len(followers)),
	)
	return nil
}

// HandleSendEmail delivers one notification email. Transport failures
// come back as-is and get retried.
func (j *Jobs) HandleSendEmail(ctx context.Context, payload json.RawMessage) error {
	var p EmailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrMalformedPayload)
	}

	return j.mailer.SendNotificationEmail(ctx, p.Subject, p.Body, p.Recipient)
}

// HandleGenerateThumbnail renders the bounded thumbnail next to the
// original in the media store.
func (j *Jobs) HandleGenerateThumbnail(ctx context.Context, payload json.RawMessage) error {
	var p ThumbnailPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Path == "" {
		return fmt.Errorf("%w: path is required", ErrMalformedPayload)
	}

	data, err := j.store.Read(ctx, p.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: original %s", ErrMissingDependency, p.Path)
		}
		return err
	}

	ext := path.Ext(p.Path)
	thumb, err := thumbnail.Render(data, ext)
	if err != nil {
		return err
	}

	return j.store.Write(ctx, thumbnail.Path(p.Path), thumb, thumbnail.ContentType(ext))
}

// HandleInferTags labels an image via the classification service and
// merges the labels into the image's tags.
func (j *Jobs) HandleInferTags(ctx context.Context, payload json.RawMessage) error {
	var p InferTagsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.ImageID == "" || p.Path == "" {
		return fmt.Errorf("%w: image_id and path are required", ErrMalformedPayload)
	}

	var image models.Image
	if err := j.db.WithContext(ctx).First(&image, "id = ?", p.ImageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: image %s", ErrMissingDependency, p.ImageID)
		}
		return err
	}

	data, err := j.store.Read(ctx, p.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: original %s", ErrMissingDependency, p.Path)
		}
		return err
	}

	labels, err := j.tagger.PredictTags(ctx, p.Path, data)
	if err != nil {
		return err
	}

	existing := map[string]bool{}
	for _, t := range image.Tags {
		existing[t] = true
	}
	for _, l := range labels {
		if !existing[l] {
			image.Tags = append(image.Tags, l)
		}
	}

	return j.db.WithContext(ctx).Model(&image).Update("tags", image.Tags).Error
}
