package posts

import (
	"log/slog"

	"github.com/emilythestrangee/posts/backend/internal/assets"
	"github.com/emilythestrangee/posts/backend/internal/models"
)

// incomingImage is an ImageInput after normalization.
type incomingImage struct {
	Key         string
	URL         string
	Description *string
	Position    int
}

type keptImage struct {
	Existing models.Image
	Incoming incomingImage
}

// imageDiff partitions the incoming and persisted image lists by normalized
// key. Kept and New partition the valid, de-duplicated incoming list; Kept
// and Deleted partition the persisted list.
type imageDiff struct {
	Kept    []keptImage
	New     []incomingImage
	Deleted []models.Image
	// Invalid holds incoming URLs that could not be normalized.
	Invalid []string
}

// existingKey is the key a persisted image is stored under. Rows written
// before StorageKey existed fall back to their URL.
func existingKey(img models.Image, r *assets.Resolver) string {
	if img.StorageKey != "" {
		return img.StorageKey
	}
	key, _ := r.Normalize(img.URL)
	return key
}

// diffImages compares the persisted images with the incoming list. Incoming
// entries that normalize to a key already seen earlier in the list are
// dropped so a post never holds two images with the same key.
func diffImages(existing []models.Image, incoming []ImageInput, r *assets.Resolver, logger *slog.Logger) imageDiff {
	var d imageDiff

	byKey := make(map[string]models.Image, len(existing))
	for _, img := range existing {
		byKey[existingKey(img, r)] = img
	}

	seen := make(map[string]bool, len(incoming))
	position := 0
	for _, in := range incoming {
		key, err := r.Normalize(in.URL)
		if err != nil {
			logger.Warn("skipping image with invalid reference",
				slog.String("url", in.URL),
				slog.String("error", err.Error()))
			d.Invalid = append(d.Invalid, in.URL)
			continue
		}
		if seen[key] {
			logger.Debug("dropping duplicate image", slog.String("key", key))
			continue
		}
		seen[key] = true

		img := incomingImage{
			Key:         key,
			URL:         in.URL,
			Description: optionalString(in.Description),
			Position:    position,
		}
		position++

		if prev, ok := byKey[key]; ok {
			d.Kept = append(d.Kept, keptImage{Existing: prev, Incoming: img})
		} else {
			d.New = append(d.New, img)
		}
	}

	for _, img := range existing {
		if !seen[existingKey(img, r)] {
			d.Deleted = append(d.Deleted, img)
		}
	}
	return d
}
