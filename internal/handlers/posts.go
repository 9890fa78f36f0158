package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/posts/backend/internal/assets"
	"github.com/emilythestrangee/posts/backend/internal/models"
	"github.com/emilythestrangee/posts/backend/internal/posts"
)

type PostHandler struct {
	posts    PostService
	issuer   UploadIssuer
	resolver *assets.Resolver
	logger   *slog.Logger
}

func NewPostHandler(svc PostService, issuer UploadIssuer, resolver *assets.Resolver, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: svc, issuer: issuer, resolver: resolver, logger: logger}
}

// present swaps the stored URLs of a non-public post for signed view URLs.
// The persisted post is left untouched.
func (h *PostHandler) present(ctx context.Context, post *models.Post) (*models.Post, error) {
	if post.IsPubliclyVisible() {
		return post, nil
	}

	out := *post
	out.Images = make([]models.Image, len(post.Images))
	signed := make(map[string]string, len(post.Images))
	for i, img := range post.Images {
		url, err := h.issuer.IssueViewURL(ctx, img.StorageKey)
		if err != nil {
			return nil, err
		}
		signed[img.URL] = url
		img.URL = url
		out.Images[i] = img
	}

	if post.CoverImage != nil {
		cover, ok := signed[*post.CoverImage]
		if !ok {
			key, err := h.resolver.Normalize(*post.CoverImage)
			if err != nil {
				h.logger.Warn("cover is not a storage reference",
					slog.Int("post_id", post.ID),
					slog.String("cover", *post.CoverImage))
				return &out, nil
			}
			if cover, err = h.issuer.IssueViewURL(ctx, key); err != nil {
				return nil, err
			}
		}
		out.CoverImage = &cover
	}
	return &out, nil
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	viewerID, _ := extractUserID(c)

	post, err := h.posts.Get(c.Request.Context(), viewerID, postID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if post, err = h.present(c.Request.Context(), post); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// CreatePost starts a new draft
func (h *PostHandler) CreatePost(c *gin.Context) {
	ownerID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input posts.DraftRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.posts.Create(c.Request.Context(), ownerID, input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// UpdatePost applies a full edit of the post and its images
func (h *PostHandler) UpdatePost(c *gin.Context) {
	ownerID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	var input posts.EditRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, _, err := h.posts.Edit(c.Request.Context(), ownerID, postID, input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if post, err = h.present(c.Request.Context(), post); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// DeletePost deletes a post and its images
func (h *PostHandler) DeletePost(c *gin.Context) {
	ownerID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	if err := h.posts.Delete(c.Request.Context(), ownerID, postID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully"})
}
