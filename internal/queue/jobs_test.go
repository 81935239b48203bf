package queue

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/eldarg/pinboard/backend/internal/storage"
	"github.com/eldarg/pinboard/backend/internal/thumbnail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeMailer records every delivery
type fakeMailer struct {
	mu   sync.Mutex
	sent []EmailPayload
	err  error
}

func (f *fakeMailer) SendNotificationEmail(ctx context.Context, subject, body, recipient string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, EmailPayload{Subject: subject, Body: body, Recipient: recipient})
	return nil
}

func (f *fakeMailer) deliveries() []EmailPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EmailPayload, len(f.sent))
	copy(out, f.sent)
	return out
}

// memStore is an in-memory storage.Storage
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (m *memStore) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return data, nil
}

func (m *memStore) Write(ctx context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = data
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

// fakeTagger returns canned labels
type fakeTagger struct {
	labels []string
	err    error
}

func (f *fakeTagger) PredictTags(ctx context.Context, filename string, data []byte) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.labels, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{
		Email:    username + "@example.com",
		Username: username,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createImage(t *testing.T, db *gorm.DB, owner *models.User, title string) *models.Image {
	t.Helper()
	img := &models.Image{
		OwnerID: owner.ID,
		Title:   title,
		Path:    "images/" + title + ".png",
	}
	require.NoError(t, db.Create(img).Error)
	return img
}

func follow(t *testing.T, db *gorm.DB, follower, followed *models.User) {
	t.Helper()
	require.NoError(t, db.Create(&models.Follow{
		FollowerID: follower.ID,
		FollowedID: followed.ID,
	}).Error)
}

func newTestJobs(t *testing.T, db *gorm.DB, mailer *fakeMailer, store *memStore, tagger *fakeTagger) (*Jobs, *Dispatcher) {
	t.Helper()
	d := NewDispatcher(db)
	d.SetBackoff(instantBackoff)
	j := NewJobs(db, mailer, store, tagger, "https://pinboard.example.com")
	j.Register(d)
	d.Start()
	t.Cleanup(d.Stop)
	return j, d
}

func TestFanOutEnqueuesOneEmailPerFollower(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeMailer{}
	_, d := newTestJobs(t, db, mailer, newMemStore(), &fakeTagger{})

	poster := createUser(t, db, "poster")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	stranger := createUser(t, db, "stranger")
	_ = stranger
	follow(t, db, alice, poster)
	follow(t, db, bob, poster)

	img := createImage(t, db, poster, "sunset")

	job, err := d.Enqueue(context.Background(), KindFanOutPostNotifications, FanOutPayload{
		ImageID: img.ID,
		UserID:  poster.ID,
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobSucceeded, got.Status)

	// Fan-out spawned one email job per follower; wait for both.
	deadline := time.Now().Add(5 * time.Second)
	for len(mailer.deliveries()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	sent := mailer.deliveries()
	require.Len(t, sent, 2)
	recipients := map[string]bool{}
	for _, e := range sent {
		recipients[e.Recipient] = true
		assert.Equal(t, "poster posted a new image", e.Subject)
		assert.Contains(t, e.Body, img.ID)
		assert.Contains(t, e.Body, "https://pinboard.example.com/images/")
	}
	assert.True(t, recipients["alice@example.com"])
	assert.True(t, recipients["bob@example.com"])
	assert.False(t, recipients["stranger@example.com"])
}

func TestFanOutWithZeroFollowersIsNoOp(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeMailer{}
	_, d := newTestJobs(t, db, mailer, newMemStore(), &fakeTagger{})

	poster := createUser(t, db, "lonely")
	img := createImage(t, db, poster, "nobody-sees-this")

	job, err := d.Enqueue(context.Background(), KindFanOutPostNotifications, FanOutPayload{
		ImageID: img.ID,
		UserID:  poster.ID,
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, got.Status)
	assert.Empty(t, mailer.deliveries())
}

func TestFanOutDeadlettersWhenImageDeleted(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeMailer{}
	_, d := newTestJobs(t, db, mailer, newMemStore(), &fakeTagger{})

	poster := createUser(t, db, "poster")

	job, err := d.Enqueue(context.Background(), KindFanOutPostNotifications, FanOutPayload{
		ImageID: "00000000-0000-0000-0000-000000000000",
		UserID:  poster.ID,
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Empty(t, mailer.deliveries())
}

func TestSendEmailRejectsEmptyRecipient(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeMailer{}
	_, d := newTestJobs(t, db, mailer, newMemStore(), &fakeTagger{})

	job, err := d.Enqueue(context.Background(), KindSendNotificationEmail, EmailPayload{
		Subject: "no recipient",
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestSendEmailRetriesTransportFailure(t *testing.T) {
	db := openTestDB(t)
	mailer := &fakeMailer{err: fmt.Errorf("ses throttled")}
	_, d := newTestJobs(t, db, mailer, newMemStore(), &fakeTagger{})

	job, err := d.Enqueue(context.Background(), KindSendNotificationEmail, EmailPayload{
		Recipient: "a@b.c",
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDead, got.Status)
	assert.Equal(t, DefaultMaxAttempts, got.Attempts)
}

func TestGenerateThumbnailWritesBoundedCopy(t *testing.T) {
	db := openTestDB(t)
	store := newMemStore()
	_, d := newTestJobs(t, db, &fakeMailer{}, store, &fakeTagger{})

	original := "images/landscape.png"
	require.NoError(t, store.Write(context.Background(), original, pngBytes(t, 600, 300), "image/png"))

	job, err := d.Enqueue(context.Background(), KindGenerateThumbnail, ThumbnailPayload{Path: original})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobSucceeded, got.Status)

	thumbPath := thumbnail.Path(original)
	assert.Equal(t, "images/landscape_thumbnail.png", thumbPath)

	data, err := store.Read(context.Background(), thumbPath)
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.LessOrEqual(t, decoded.Bounds().Dx(), thumbnail.MaxWidth)
	assert.LessOrEqual(t, decoded.Bounds().Dy(), thumbnail.MaxHeight)
}

func TestGenerateThumbnailMissingOriginalIsDead(t *testing.T) {
	db := openTestDB(t)
	store := newMemStore()
	_, d := newTestJobs(t, db, &fakeMailer{}, store, &fakeTagger{})

	job, err := d.Enqueue(context.Background(), KindGenerateThumbnail, ThumbnailPayload{Path: "images/never-uploaded.png"})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDead, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestInferTagsMergesLabels(t *testing.T) {
	db := openTestDB(t)
	store := newMemStore()
	tagger := &fakeTagger{labels: []string{"sunset", "beach"}}
	_, d := newTestJobs(t, db, &fakeMailer{}, store, tagger)

	owner := createUser(t, db, "owner")
	img := createImage(t, db, owner, "shore")
	require.NoError(t, db.Model(img).Update("tags", models.StringArray{"beach", "summer"}).Error)
	require.NoError(t, store.Write(context.Background(), img.Path, pngBytes(t, 64, 64), "image/png"))

	job, err := d.Enqueue(context.Background(), KindInferTags, InferTagsPayload{
		ImageID: img.ID,
		Path:    img.Path,
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobSucceeded, got.Status)

	var updated models.Image
	require.NoError(t, db.First(&updated, "id = ?", img.ID).Error)
	assert.ElementsMatch(t, []string{"beach", "summer", "sunset"}, []string(updated.Tags))
}

func TestInferTagsRetriesClassifierOutage(t *testing.T) {
	db := openTestDB(t)
	store := newMemStore()
	tagger := &fakeTagger{err: fmt.Errorf("classifier unavailable")}
	_, d := newTestJobs(t, db, &fakeMailer{}, store, tagger)

	owner := createUser(t, db, "owner")
	img := createImage(t, db, owner, "shore")
	require.NoError(t, store.Write(context.Background(), img.Path, pngBytes(t, 64, 64), "image/png"))

	job, err := d.Enqueue(context.Background(), KindInferTags, InferTagsPayload{
		ImageID: img.ID,
		Path:    img.Path,
	})
	require.NoError(t, err)
	require.NoError(t, d.WaitForJob(job.ID, 5*time.Second))

	got, err := d.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobDead, got.Status)
	assert.Equal(t, DefaultMaxAttempts, got.Attempts)
}
