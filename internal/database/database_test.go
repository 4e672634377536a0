package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsight/mailsight/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestCreateImageDeduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	img := &models.ImageRecord{UID: 100, Name: "photo.jpg", Subject: "report", Image: []byte{1, 2}, EmailDate: date}
	require.NoError(t, db.CreateImage(ctx, img))
	assert.NotZero(t, img.ID)

	// Same uid and name is the processed-before case
	dup := &models.ImageRecord{UID: 100, Name: "photo.jpg", EmailDate: date}
	assert.ErrorIs(t, db.CreateImage(ctx, dup), ErrAlreadyExists)

	// Same message, second image
	second := &models.ImageRecord{UID: 100, Name: "photo2.jpg", EmailDate: date}
	require.NoError(t, db.CreateImage(ctx, second))

	exists, err := db.ImageExistsByUID(ctx, 100)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = db.ImageExistsByUID(ctx, 200)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetImageByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	img := &models.ImageRecord{
		UID:       7,
		Name:      "cam.png",
		Subject:   "night shift",
		OwnerID:   owner,
		Image:     []byte{0x89, 0x50},
		EmailDate: time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	require.NoError(t, db.CreateImage(ctx, img))

	got, err := db.GetImageByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, img.Name, got.Name)
	assert.Equal(t, owner, got.OwnerID)
	assert.False(t, got.SubOwnerID.Valid)
	assert.Equal(t, []byte{0x89, 0x50}, got.Image)

	_, err = db.GetImageByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLatestImage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetLatestImage(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	older := &models.ImageRecord{UID: 1, Name: "a.jpg", EmailDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	newer := &models.ImageRecord{UID: 2, Name: "b.jpg", EmailDate: time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, db.CreateImage(ctx, older))
	require.NoError(t, db.CreateImage(ctx, newer))

	latest, err := db.GetLatestImage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b.jpg", latest.Name)
}

func TestUpdateImageAnalysis(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	img := &models.ImageRecord{UID: 5, Name: "x.jpg", EmailDate: time.Now().UTC()}
	require.NoError(t, db.CreateImage(ctx, img))

	img.Analysis = `{"tags":["forest"]}`
	img.AppendBackendTag("CloudVision")
	require.NoError(t, db.UpdateImageAnalysis(ctx, img))

	got, err := db.GetImageByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, `{"tags":["forest"]}`, got.Analysis)
	assert.Equal(t, []string{"CloudVision"}, got.BackendTagList())
}

func TestWatermarkLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const mailbox = "watcher@example.com"

	w, err := db.GetOrCreateWatermark(ctx, mailbox)
	require.NoError(t, err)
	assert.Equal(t, 0, w.MessagesCount)
	assert.False(t, w.LastUID.Valid)

	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	w.Advance(100, t1, 2048)
	require.NoError(t, db.SaveWatermark(ctx, w))

	got, err := db.GetWatermark(ctx, mailbox)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.LastUID.Int64)
	assert.Equal(t, 1, got.MessagesCount)
	assert.Equal(t, int64(2048), got.TotalSize)
	assert.WithinDuration(t, t1, got.LastSeen.Time, time.Second)

	// A stale save cannot pull the stored uid backward
	stale := &models.WatermarkState{
		Mailbox:       mailbox,
		MessagesCount: got.MessagesCount,
		TotalSize:     got.TotalSize,
		LastUID:       sql.NullInt64{Int64: 50, Valid: true},
	}
	require.NoError(t, db.SaveWatermark(ctx, stale))

	got, err = db.GetWatermark(ctx, mailbox)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.LastUID.Int64)
	assert.True(t, got.LastSeen.Valid, "null last_seen in a save keeps the stored value")
}

func TestGetOrCreateWatermarkSeedsFromLatestImage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const mailbox = "watcher@example.com"

	date := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	older := &models.ImageRecord{UID: 40, Name: "a.jpg", EmailDate: date.AddDate(0, 0, -2)}
	newest := &models.ImageRecord{UID: 42, Name: "b.jpg", EmailDate: date}
	require.NoError(t, db.CreateImage(ctx, older))
	require.NoError(t, db.CreateImage(ctx, newest))

	// First run against an existing archive resumes past stored mail
	w, err := db.GetOrCreateWatermark(ctx, mailbox)
	require.NoError(t, err)
	require.True(t, w.LastUID.Valid)
	assert.Equal(t, int64(42), w.LastUID.Int64)
	require.True(t, w.LastSeen.Valid)
	assert.WithinDuration(t, date, w.LastSeen.Time, time.Second)
	assert.Equal(t, 0, w.MessagesCount)
}

func TestAdjustWatermarkCountClampsAtZero(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const mailbox = "watcher@example.com"

	w, err := db.GetOrCreateWatermark(ctx, mailbox)
	require.NoError(t, err)
	w.Advance(1, time.Now().UTC(), 0)
	require.NoError(t, db.SaveWatermark(ctx, w))

	require.NoError(t, db.AdjustWatermarkCount(ctx, mailbox, -5))

	got, err := db.GetWatermark(ctx, mailbox)
	require.NoError(t, err)
	assert.Equal(t, 0, got.MessagesCount)
}

func TestGetAlertRulesForOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ownerA := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	global := &models.AlertRule{Title: "global", Keywords: "dog"}
	scoped := &models.AlertRule{Title: "scoped", Keywords: "cat", OwnerID: ownerA}
	require.NoError(t, db.CreateAlertRule(ctx, global))
	require.NoError(t, db.CreateAlertRule(ctx, scoped))

	rules, err := db.GetAlertRulesForOwner(ctx, uuid.NullUUID{})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "global", rules[0].Title)

	rules, err = db.GetAlertRulesForOwner(ctx, ownerA)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
}

func TestGetMappingsBySender(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	m := &models.OwnerMapping{
		Name:   "site a camera",
		Filter: "camera@site-a.example.com",
		Key:    sql.NullString{String: "Daily Report", Valid: true},
		Value:  uuid.NullUUID{UUID: uuid.New(), Valid: true},
	}
	require.NoError(t, db.CreateMapping(ctx, m))
	assert.NotEqual(t, uuid.Nil, m.ID)

	got, err := db.GetMappingsBySender(ctx, "camera@site-a.example.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, m.Value, got[0].Value)

	got, err = db.GetMappingsBySender(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Empty(t, got)
}
