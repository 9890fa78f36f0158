package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/posts/backend/internal/models"
	"github.com/emilythestrangee/posts/backend/internal/storage"
	"github.com/emilythestrangee/posts/backend/internal/storage/storagetest"
)

var layout = storage.Layout{
	Bucket:          "media",
	PublicBaseURL:   "https://storage.googleapis.com",
	TempPrefix:      "temp",
	PermanentPrefix: "posts",
}

func newLifecycle(store storage.ObjectStore, timeout time.Duration) *storage.Lifecycle {
	return storage.NewLifecycle(store, storage.LifecycleOptions{
		Layout:      layout,
		Timeout:     timeout,
		Concurrency: 2,
	})
}

func TestPromoteMovesObjectToScopedPath(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/u1-cat.jpg")
	m := newLifecycle(store, time.Second)

	got, err := m.Promote(context.Background(), "temp/7/u1-cat.jpg", storage.Target{OwnerID: 7, PostID: 42, Visibility: models.VisibilityPublic})
	require.NoError(t, err)

	assert.Equal(t, "https://storage.googleapis.com/media/posts/public/7/42/u1-cat.jpg", got)
	assert.True(t, store.Has("posts/public/7/42/u1-cat.jpg"))
	assert.False(t, store.Has("temp/7/u1-cat.jpg"))
}

func TestPromotePrivateScope(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/u1-cat.jpg")
	m := newLifecycle(store, time.Second)

	got, err := m.Promote(context.Background(), "temp/7/u1-cat.jpg", storage.Target{OwnerID: 7, PostID: 42, Visibility: models.VisibilityFollowers})
	require.NoError(t, err)
	assert.Contains(t, got, "/posts/private/7/42/")
}

func TestPromoteFailureIsStorageError(t *testing.T) {
	store := storagetest.NewMemStore()
	m := newLifecycle(store, time.Second)

	_, err := m.Promote(context.Background(), "temp/7/missing.jpg", storage.Target{OwnerID: 7, PostID: 1})
	assert.ErrorIs(t, err, storage.ErrStorageOperationFailed)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	var opErr *storage.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "promote", opErr.Op)
	assert.Equal(t, "temp/7/missing.jpg", opErr.Key)
}

func TestPromoteSurvivesTempCleanupFailure(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/u1-cat.jpg")
	store.FailDelete("temp/7/u1-cat.jpg", errors.New("permission denied"))
	m := newLifecycle(store, time.Second)

	got, err := m.Promote(context.Background(), "temp/7/u1-cat.jpg", storage.Target{OwnerID: 7, PostID: 42})
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.True(t, store.Has("posts/private/7/42/u1-cat.jpg"))
}

func TestSettleCollectsFailuresWithoutAborting(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/a.jpg", "temp/7/b.jpg", "posts/public/7/1/old.jpg", "posts/public/7/1/gone.jpg")
	store.FailCopy("temp/7/b.jpg", errors.New("backend unavailable"))
	store.FailDelete("posts/public/7/1/gone.jpg", errors.New("backend unavailable"))
	m := newLifecycle(store, time.Second)

	out, err := m.Settle(context.Background(), storage.Plan{
		Target:  storage.Target{OwnerID: 7, PostID: 1, Visibility: models.VisibilityPublic},
		Promote: []string{"temp/7/a.jpg", "temp/7/b.jpg"},
		Delete:  []string{"posts/public/7/1/old.jpg", "posts/public/7/1/gone.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"temp/7/a.jpg": "https://storage.googleapis.com/media/posts/public/7/1/a.jpg",
	}, out.Promoted)
	assert.Contains(t, out.PromoteFailures, "temp/7/b.jpg")
	assert.Contains(t, out.DeleteFailures, "posts/public/7/1/gone.jpg")
	assert.False(t, store.Has("posts/public/7/1/old.jpg"))
	assert.True(t, store.Has("temp/7/b.jpg"))
}

func TestSettleIgnoresCallerCancellation(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/a.jpg")
	m := newLifecycle(store, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := m.Settle(ctx, storage.Plan{
		Target:  storage.Target{OwnerID: 7, PostID: 1},
		Promote: []string{"temp/7/a.jpg"},
	})
	require.NoError(t, err)
	assert.Len(t, out.Promoted, 1)
}

func TestSettleTimeout(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/a.jpg")
	store.SetDelay(time.Second)
	m := newLifecycle(store, 20*time.Millisecond)

	out, err := m.Settle(context.Background(), storage.Plan{
		Target:  storage.Target{OwnerID: 7, PostID: 1},
		Promote: []string{"temp/7/a.jpg"},
	})
	assert.ErrorIs(t, err, storage.ErrStorageOperationFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, out.PromoteFailures, "temp/7/a.jpg")
}

func TestSettleEmptyPlan(t *testing.T) {
	store := storagetest.NewMemStore()
	m := newLifecycle(store, time.Second)

	out, err := m.Settle(context.Background(), storage.Plan{})
	require.NoError(t, err)
	assert.Empty(t, out.Promoted)
	assert.Empty(t, store.Calls())
}

func TestPromoteRecognisesEarlierPromotion(t *testing.T) {
	store := storagetest.NewMemStore("temp/7/u1-cat.jpg")
	m := newLifecycle(store, time.Second)
	target := storage.Target{OwnerID: 7, PostID: 42, Visibility: models.VisibilityPublic}

	first, err := m.Promote(context.Background(), "temp/7/u1-cat.jpg", target)
	require.NoError(t, err)

	second, err := m.Promote(context.Background(), "temp/7/u1-cat.jpg", target)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSettleRelocatesKeptImagesIntoTargetScope(t *testing.T) {
	private := "posts/private/7/1/u1-b.jpg"
	public := "posts/public/7/1/u2-c.jpg"
	legacy := "uploads/legacy.jpg"
	store := storagetest.NewMemStore(private, public, legacy)
	m := newLifecycle(store, time.Second)

	out, err := m.Settle(context.Background(), storage.Plan{
		Target: storage.Target{OwnerID: 7, PostID: 1, Visibility: models.VisibilityPublic},
		Keep:   []string{private, public, legacy},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		private: "https://storage.googleapis.com/media/posts/public/7/1/u1-b.jpg",
	}, out.Relocated)
	assert.True(t, store.Has("posts/public/7/1/u1-b.jpg"))
	assert.False(t, store.Has(private))
	assert.True(t, store.Has(public))
	assert.True(t, store.Has(legacy))
}

func TestSettleRelocationFailureIsReported(t *testing.T) {
	public := "posts/public/7/1/u1-b.jpg"
	store := storagetest.NewMemStore(public)
	store.FailCopy(public, errors.New("backend unavailable"))
	m := newLifecycle(store, time.Second)

	out, err := m.Settle(context.Background(), storage.Plan{
		Target: storage.Target{OwnerID: 7, PostID: 1, Visibility: models.VisibilityPrivate},
		Keep:   []string{public},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Relocated)
	assert.ErrorIs(t, out.RelocateFailures[public], storage.ErrStorageOperationFailed)
	assert.True(t, store.Has(public))
}

func TestSettleKeepInScopeTouchesNothing(t *testing.T) {
	store := storagetest.NewMemStore("posts/public/7/1/a.jpg")
	m := newLifecycle(store, time.Second)

	out, err := m.Settle(context.Background(), storage.Plan{
		Target: storage.Target{OwnerID: 7, PostID: 1, Visibility: models.VisibilityPublic},
		Keep:   []string{"posts/public/7/1/a.jpg"},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Relocated)
	assert.Empty(t, store.Calls())
}

func TestLayoutRoundTripsUnderCustomBase(t *testing.T) {
	for _, base := range []string{"https://storage.googleapis.com", "https://cdn.example.com"} {
		l := layout
		l.PublicBaseURL = base
		key := "temp/7/u1-b.jpg"
		got, err := l.Resolver().Normalize(l.CanonicalURL(key))
		require.NoError(t, err)
		assert.Equal(t, key, got, base)
	}
}
