package posts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/posts/backend/internal/database"
	"github.com/emilythestrangee/posts/backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("posts"),
		tcpostgres.WithUsername("posts"),
		tcpostgres.WithPassword("posts"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedPost(t *testing.T, db *gorm.DB) (models.User, models.Post) {
	t.Helper()
	user := models.User{Username: "ada", Email: "ada@example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)

	cover := base + keyA
	post := models.Post{
		Title:      "Before",
		Tags:       []string{"old"},
		Visibility: models.VisibilityPrivate,
		IsDraft:    true,
		CoverImage: &cover,
		OwnerID:    user.ID,
		Images: []models.Image{
			{URL: base + keyA, StorageKey: keyA, Position: 0},
			{URL: base + keyC, StorageKey: keyC, Description: strPtr("c"), Position: 1},
		},
	}
	require.NoError(t, db.Create(&post).Error)
	return user, post
}

func TestStoreApplyEdit(t *testing.T) {
	db := newTestDB(t)
	user, post := seedPost(t, db)
	store := NewStore(db, 5*time.Second, nil, nil)

	newCover := base + promotB
	updated, err := store.ApplyEdit(context.Background(), Changeset{
		PostID:     post.ID,
		OwnerID:    user.ID,
		Title:      "After",
		Category:   "travel",
		Tags:       []string{"sea", "sun"},
		Visibility: models.VisibilityPublic,
		IsDraft:    false,
		CoverImage: &newCover,
		DeleteKeys: []string{keyC},
		Insert: []models.Image{
			{PostID: post.ID, URL: base + promotB, StorageKey: promotB, Description: strPtr("b"), Position: 1},
		},
		Update: []ImageUpdate{{ID: post.Images[0].ID, Description: strPtr("a"), Position: 0}},
	})
	require.NoError(t, err)

	assert.Equal(t, "After", updated.Title)
	assert.Equal(t, []string{"sea", "sun"}, []string(updated.Tags))
	assert.Equal(t, models.VisibilityPublic, updated.Visibility)
	assert.False(t, updated.IsDraft)
	assert.Equal(t, newCover, *updated.CoverImage)
	assert.True(t, updated.UpdatedAt.After(post.UpdatedAt) || updated.UpdatedAt.Equal(post.UpdatedAt))

	require.Len(t, updated.Images, 2)
	assert.Equal(t, keyA, updated.Images[0].StorageKey)
	assert.Equal(t, "a", *updated.Images[0].Description)
	assert.Equal(t, promotB, updated.Images[1].StorageKey)
}

func TestStoreApplyEditMovesImageKey(t *testing.T) {
	db := newTestDB(t)
	user, post := seedPost(t, db)
	store := NewStore(db, 5*time.Second, nil, nil)

	const moved = "posts/private/7/1/a.jpg"
	updated, err := store.ApplyEdit(context.Background(), Changeset{
		PostID:     post.ID,
		OwnerID:    user.ID,
		Title:      "Before",
		Visibility: models.VisibilityPrivate,
		IsDraft:    true,
		Update: []ImageUpdate{
			{ID: post.Images[0].ID, Position: 0, URL: base + moved, StorageKey: moved},
			{ID: post.Images[1].ID, Description: strPtr("c"), Position: 1},
		},
	})
	require.NoError(t, err)

	require.Len(t, updated.Images, 2)
	assert.Equal(t, moved, updated.Images[0].StorageKey)
	assert.Equal(t, base+moved, updated.Images[0].URL)
	assert.Equal(t, keyC, updated.Images[1].StorageKey)
}

func TestStoreApplyEditIsAtomic(t *testing.T) {
	db := newTestDB(t)
	user, post := seedPost(t, db)
	store := NewStore(db, 5*time.Second, nil, nil)

	// The insert collides with the kept image's key after the delete and the
	// post update have already run inside the transaction.
	_, err := store.ApplyEdit(context.Background(), Changeset{
		PostID:     post.ID,
		OwnerID:    user.ID,
		Title:      "After",
		Visibility: models.VisibilityPublic,
		DeleteKeys: []string{keyC},
		Insert:     []models.Image{{PostID: post.ID, URL: base + keyA, StorageKey: keyA}},
	})
	require.ErrorIs(t, err, ErrTransactionFailed)

	reloaded, err := store.FindPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Equal(t, "Before", reloaded.Title)
	assert.True(t, reloaded.IsDraft)
	assert.Equal(t, []string{keyA, keyC}, keys(reloaded.Images))
}

func TestStoreApplyEditChecksOwner(t *testing.T) {
	db := newTestDB(t)
	user, post := seedPost(t, db)
	store := NewStore(db, 5*time.Second, nil, nil)

	_, err := store.ApplyEdit(context.Background(), Changeset{
		PostID:     post.ID,
		OwnerID:    user.ID + 1,
		Title:      "Hijacked",
		Visibility: models.VisibilityPublic,
		DeleteKeys: []string{keyA, keyC},
	})
	require.ErrorIs(t, err, ErrPostNotFound)

	reloaded, err := store.FindPost(context.Background(), post.ID)
	require.NoError(t, err)
	assert.Len(t, reloaded.Images, 2)
}

func TestStoreDeletePost(t *testing.T) {
	db := newTestDB(t)
	_, post := seedPost(t, db)
	store := NewStore(db, 5*time.Second, nil, nil)

	require.NoError(t, store.DeletePost(context.Background(), post.ID))
	_, err := store.FindPost(context.Background(), post.ID)
	assert.ErrorIs(t, err, ErrPostNotFound)

	var count int64
	require.NoError(t, db.Model(&models.Image{}).Where("post_id = ?", post.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.ErrorIs(t, store.DeletePost(context.Background(), post.ID), ErrPostNotFound)
}
