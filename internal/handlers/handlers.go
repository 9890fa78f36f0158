package handlers

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/emilythestrangee/posts/backend/internal/assets"
	"github.com/emilythestrangee/posts/backend/internal/logging"
	"github.com/emilythestrangee/posts/backend/internal/middleware"
	"github.com/emilythestrangee/posts/backend/internal/models"
	"github.com/emilythestrangee/posts/backend/internal/posts"
	"github.com/emilythestrangee/posts/backend/internal/storage"
)

// PostService is the post workflow the handlers drive.
type PostService interface {
	Get(ctx context.Context, viewerID, postID int) (*models.Post, error)
	Create(ctx context.Context, ownerID int, req posts.DraftRequest) (*models.Post, error)
	Edit(ctx context.Context, ownerID, postID int, req posts.EditRequest) (*models.Post, posts.EditReport, error)
	Delete(ctx context.Context, ownerID, postID int) error
}

// UploadIssuer signs upload and view URLs.
type UploadIssuer interface {
	IssueUploadURL(ctx context.Context, fileName, contentType string, ownerID int) (storage.Upload, error)
	IssueViewURL(ctx context.Context, key string) (string, error)
}

// Handler combines all handler types
type Handler struct {
	Auth   *AuthHandler
	Post   *PostHandler
	Upload *UploadHandler
}

func NewHandler(db *gorm.DB, tokens *middleware.Tokens, svc PostService, issuer UploadIssuer, resolver *assets.Resolver, logger *slog.Logger) *Handler {
	logger = logging.OrDiscard(logger)
	return &Handler{
		Auth:   NewAuthHandler(db, tokens),
		Post:   NewPostHandler(svc, issuer, resolver, logger),
		Upload: NewUploadHandler(issuer, logger),
	}
}
