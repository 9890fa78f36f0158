package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	issuer UploadIssuer
	logger *slog.Logger
}

func NewUploadHandler(issuer UploadIssuer, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{issuer: issuer, logger: logger}
}

type uploadRequest struct {
	FileName    string `json:"fileName" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// CreateUpload issues a signed PUT URL into the caller's staging area.
func (h *UploadHandler) CreateUpload(c *gin.Context) {
	userID, ok := extractUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var input uploadRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !strings.Contains(input.ContentType, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid content type"})
		return
	}

	upload, err := h.issuer.IssueUploadURL(c.Request.Context(), input.FileName, input.ContentType, userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}
