package posts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emilythestrangee/posts/backend/internal/assets"
	"github.com/emilythestrangee/posts/backend/internal/logging"
	"github.com/emilythestrangee/posts/backend/internal/models"
)

var gcs = assets.NewResolver("https://storage.googleapis.com", "media")

func persisted(id int, key string) models.Image {
	return models.Image{ID: id, PostID: 1, URL: "https://storage.googleapis.com/media/" + key, StorageKey: key}
}

func keysOf(d imageDiff) (kept, added, deleted []string) {
	for _, k := range d.Kept {
		kept = append(kept, k.Incoming.Key)
	}
	for _, n := range d.New {
		added = append(added, n.Key)
	}
	for _, e := range d.Deleted {
		deleted = append(deleted, e.StorageKey)
	}
	return kept, added, deleted
}

func TestDiffImagesPartitions(t *testing.T) {
	tests := []struct {
		name        string
		existing    []models.Image
		incoming    []ImageInput
		kept, added []string
		deleted     []string
	}{
		{
			name:     "add to existing",
			existing: []models.Image{persisted(1, "perm/a.jpg")},
			incoming: []ImageInput{{URL: "perm/a.jpg", Description: "x"}, {URL: "temp/7/b.jpg", Description: "y"}},
			kept:     []string{"perm/a.jpg"},
			added:    []string{"temp/7/b.jpg"},
		},
		{
			name:     "remove one",
			existing: []models.Image{persisted(1, "perm/a.jpg"), persisted(2, "perm/c.jpg")},
			incoming: []ImageInput{{URL: "perm/a.jpg", Description: "x"}},
			kept:     []string{"perm/a.jpg"},
			deleted:  []string{"perm/c.jpg"},
		},
		{
			name:     "signed urls match persisted ones",
			existing: []models.Image{persisted(1, "perm/a.jpg")},
			incoming: []ImageInput{{URL: "https://storage.googleapis.com/media/perm/a.jpg?X-Goog-Signature=abc"}},
			kept:     []string{"perm/a.jpg"},
		},
		{
			name:     "clear all",
			existing: []models.Image{persisted(1, "perm/a.jpg"), persisted(2, "perm/c.jpg")},
			deleted:  []string{"perm/a.jpg", "perm/c.jpg"},
		},
		{
			name:     "duplicates collapse",
			incoming: []ImageInput{{URL: "temp/7/b.jpg"}, {URL: "https://cdn.example.com/temp/7/b.jpg?sig=2"}},
			added:    []string{"temp/7/b.jpg"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diffImages(tt.existing, tt.incoming, gcs, logging.Discard())
			kept, added, deleted := keysOf(d)
			assert.ElementsMatch(t, tt.kept, kept)
			assert.ElementsMatch(t, tt.added, added)
			assert.ElementsMatch(t, tt.deleted, deleted)

			// kept and deleted partition the persisted set.
			assert.Equal(t, len(tt.existing), len(kept)+len(deleted))
			for _, k := range added {
				assert.NotContains(t, deleted, k)
			}
		})
	}
}

func TestDiffImagesSkipsInvalidReferences(t *testing.T) {
	d := diffImages(
		[]models.Image{persisted(1, "perm/a.jpg")},
		[]ImageInput{{URL: "ftp://nope/x.jpg"}, {URL: "perm/a.jpg"}, {URL: ""}},
		gcs,
		logging.Discard(),
	)
	assert.Equal(t, []string{"ftp://nope/x.jpg", ""}, d.Invalid)
	assert.Len(t, d.Kept, 1)
	assert.Empty(t, d.New)
	assert.Empty(t, d.Deleted)
}

func TestDiffImagesAssignsPositionsAfterFiltering(t *testing.T) {
	d := diffImages(nil, []ImageInput{
		{URL: "::bad"},
		{URL: "temp/7/a.jpg", Description: "first"},
		{URL: "temp/7/a.jpg"},
		{URL: "temp/7/b.jpg"},
	}, gcs, logging.Discard())

	if assert.Len(t, d.New, 2) {
		assert.Equal(t, 0, d.New[0].Position)
		assert.Equal(t, "first", *d.New[0].Description)
		assert.Equal(t, 1, d.New[1].Position)
		assert.Nil(t, d.New[1].Description)
	}
}

func TestResolveVisibility(t *testing.T) {
	for _, v := range []models.Visibility{models.VisibilityPublic, models.VisibilityPrivate, models.VisibilityFollowers} {
		assert.Equal(t, models.VisibilityPrivate, resolveVisibility(true, v))
		assert.Equal(t, v, resolveVisibility(false, v))
	}
}
