package posts

import (
	"github.com/emilythestrangee/posts/backend/internal/models"
)

// ImageInput is one entry of the client's image list, in display order.
type ImageInput struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// EditRequest is the full desired state of a post as submitted by its owner.
// A nil CoverImageURL keeps the persisted cover.
type EditRequest struct {
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Category      string       `json:"category"`
	Tags          []string     `json:"tags"`
	Visibility    string       `json:"visibility"`
	IsDraft       bool         `json:"isDraft"`
	Images        []ImageInput `json:"images"`
	CoverImageURL *string      `json:"coverImageUrl"`
}

// DraftRequest creates a new, private draft.
type DraftRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// EditState is a step of a single edit: received, diffed, storage_settled,
// then committed or failed.
type EditState string

const (
	StateReceived       EditState = "received"
	StateDiffed         EditState = "diffed"
	StateStorageSettled EditState = "storage_settled"
	StateCommitted      EditState = "committed"
	StateFailed         EditState = "failed"
)

// EditReport summarises what an edit did. It is logged and counted but not
// returned to API callers.
type EditReport struct {
	State            EditState
	Kept             int
	Added            int
	Deleted          int
	Relocated        int
	Skipped          []string
	PromoteFailures  []string
	DeleteFailures   []string
	RelocateFailures []string
	CoverSource      string
	Cover            *string
	Visibility       models.Visibility
}

// ImageUpdate changes the mutable fields of a kept image. URL and
// StorageKey are set only when the image moved to another scope.
type ImageUpdate struct {
	ID          int
	Description *string
	Position    int
	URL         string
	StorageKey  string
}

// Changeset is the relational delta of one edit, applied atomically.
type Changeset struct {
	PostID      int
	OwnerID     int
	Title       string
	Description string
	Category    string
	Tags        []string
	Visibility  models.Visibility
	IsDraft     bool
	CoverImage  *string

	DeleteKeys []string
	Insert     []models.Image
	Update     []ImageUpdate
}

// resolveVisibility forces drafts to PRIVATE.
func resolveVisibility(isDraft bool, requested models.Visibility) models.Visibility {
	if isDraft {
		return models.VisibilityPrivate
	}
	return requested
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
