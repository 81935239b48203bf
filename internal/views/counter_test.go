package views

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/eldarg/pinboard/backend/internal/logger"
	"github.com/eldarg/pinboard/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize("error", ""); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Category{}, &models.Image{}))

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedImage(t *testing.T, db *gorm.DB, title string, views int64, createdAt time.Time) *models.Image {
	t.Helper()

	var owner models.User
	err := db.First(&owner, "username = ?", "owner").Error
	if err != nil {
		owner = models.User{Email: "owner@example.com", Username: "owner"}
		require.NoError(t, db.Create(&owner).Error)
	}

	img := &models.Image{
		OwnerID: owner.ID,
		Title:   title,
		Path:    "images/" + title + ".png",
		Views:   views,
	}
	require.NoError(t, db.Create(img).Error)
	require.NoError(t, db.Model(img).UpdateColumn("created_at", createdAt).Error)
	return img
}

func TestHitIncrements(t *testing.T) {
	db := openTestDB(t)
	c := NewCounter(db, nil)
	ctx := context.Background()

	img := seedImage(t, db, "cat", 5, time.Now().UTC())

	total, err := c.Hit(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	total, err = c.Hit(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)

	var row models.Image
	require.NoError(t, db.First(&row, "id = ?", img.ID).Error)
	assert.Equal(t, int64(7), row.Views)
}

func TestHitUnknownImage(t *testing.T) {
	db := openTestDB(t)
	c := NewCounter(db, nil)

	_, err := c.Hit(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestTotalWithoutHit(t *testing.T) {
	db := openTestDB(t)
	c := NewCounter(db, nil)

	img := seedImage(t, db, "dog", 42, time.Now().UTC())

	total, err := c.Total(context.Background(), img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), total)
}

func TestMostPopularOrdersByViewsWithinWindow(t *testing.T) {
	db := openTestDB(t)
	c := NewCounter(db, nil)
	now := time.Now().UTC()

	low := seedImage(t, db, "low", 3, now.Add(-time.Hour))
	high := seedImage(t, db, "high", 100, now.Add(-48*time.Hour))
	mid := seedImage(t, db, "mid", 50, now.Add(-24*time.Hour))
	// Outside the two-week window regardless of views
	seedImage(t, db, "ancient", 9999, now.Add(-15*24*time.Hour))

	images, err := c.MostPopular(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, high.ID, images[0].ID)
	assert.Equal(t, mid.ID, images[1].ID)
	assert.Equal(t, low.ID, images[2].ID)
}

func TestMostPopularHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	c := NewCounter(db, nil)
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		seedImage(t, db, fmt.Sprintf("img%d", i), int64(i), now)
	}

	images, err := c.MostPopular(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

// fakeViewStore is an in-memory stand-in for the redis counter tier
type fakeViewStore struct {
	mu   sync.Mutex
	vals map[string]string
}

func newFakeViewStore() *fakeViewStore {
	return &fakeViewStore{vals: map[string]string{}}
}

func (f *fakeViewStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vals[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeViewStore) GetInt(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vals[key]
	if !ok {
		return 0, redis.Nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (f *fakeViewStore) SetNX(ctx context.Context, key string, value interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vals[key]; ok {
		return false, nil
	}
	f.vals[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeViewStore) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.vals[key], 10, 64)
	n++
	f.vals[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeViewStore) SetEx(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.vals[key] = string(v)
	default:
		f.vals[key] = fmt.Sprint(v)
	}
	return nil
}

func TestHitSeedsCounterAndWritesBack(t *testing.T) {
	db := openTestDB(t)
	store := newFakeViewStore()
	c := &Counter{db: db, redis: store}
	ctx := context.Background()

	img := seedImage(t, db, "pier", 5, time.Now().UTC())

	// First hit seeds the counter from the row, then increments
	total, err := c.Hit(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)

	// Second hit increments without re-seeding
	total, err = c.Hit(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)

	cached, err := store.GetInt(ctx, viewKey(img.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(7), cached)

	// Every hit writes the running total back to the row
	var row models.Image
	require.NoError(t, db.First(&row, "id = ?", img.ID).Error)
	assert.Equal(t, int64(7), row.Views)
}

func TestTotalPrefersCounter(t *testing.T) {
	db := openTestDB(t)
	store := newFakeViewStore()
	c := &Counter{db: db, redis: store}
	ctx := context.Background()

	img := seedImage(t, db, "harbor", 5, time.Now().UTC())
	store.vals[viewKey(img.ID)] = "99"

	total, err := c.Total(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(99), total)

	// An unset counter falls through to the row
	other := seedImage(t, db, "gull", 12, time.Now().UTC())
	total, err = c.Total(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)
}

func TestMostPopularServesFromCache(t *testing.T) {
	db := openTestDB(t)
	store := newFakeViewStore()
	c := &Counter{db: db, redis: store}
	ctx := context.Background()
	now := time.Now().UTC()

	first := seedImage(t, db, "first", 10, now)

	images, err := c.MostPopular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, first.ID, images[0].ID)

	// A newer, more viewed image does not appear until the cache expires
	seedImage(t, db, "second", 500, now)

	images, err = c.MostPopular(ctx, 10)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, first.ID, images[0].ID)
}
