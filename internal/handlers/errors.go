package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/posts/backend/internal/middleware"
	"github.com/emilythestrangee/posts/backend/internal/posts"
	"github.com/emilythestrangee/posts/backend/internal/storage"
)

// writeError maps service errors onto status codes. Internal details are
// logged, never returned.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
	case errors.Is(err, posts.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only modify your own posts"})
	case errors.Is(err, posts.ErrInvalidEdit):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrStorageOperationFailed):
		logger.Error("storage failure", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Storage operation failed"})
	case errors.Is(err, posts.ErrTransactionFailed):
		logger.Error("transaction failure", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save post"})
	default:
		logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func extractUserID(c *gin.Context) (int, bool) {
	return middleware.UserID(c)
}

func postIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post ID"})
		return 0, false
	}
	return id, true
}
